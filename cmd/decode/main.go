// Command decode drives session.Session directly over a WAV file, feeding
// feature frames in small chunks to exercise the same streaming path a
// live microphone session would use, printing the endpoint decision and
// the final word sequence.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/audio"
	"github.com/ieee0824/lattice-decoder/feature"
	"github.com/ieee0824/lattice-decoder/language"
	"github.com/ieee0824/lattice-decoder/lexicon"
	"github.com/ieee0824/lattice-decoder/lmdiff"
	"github.com/ieee0824/lattice-decoder/session"
	"github.com/ieee0824/lattice-decoder/wfst"
)

func main() {
	amPath := flag.String("am", "", "path to acoustic model file")
	lmPath := flag.String("lm", "", "path to language model (ARPA format), optional")
	dictPath := flag.String("dict", "", "path to pronunciation dictionary")
	graphPath := flag.String("graph", "", "path to a pre-compiled graph (see wfstcompile); overrides -dict")
	wavPath := flag.String("wav", "", "path to input WAV file")
	chunkFrames := flag.Int("chunk-frames", 20, "feature frames pushed per Advance call, simulating streaming audio")
	lmWeight := flag.Float64("lm-weight", 1.0, "language model weight")
	verbose := flag.Bool("v", false, "print endpoint state after every chunk")
	flag.Parse()

	if *amPath == "" || *wavPath == "" || (*dictPath == "" && *graphPath == "") {
		fmt.Fprintln(os.Stderr, "Usage: decode -am MODEL (-dict DICT | -graph GRAPH) -wav AUDIO")
		flag.PrintDefaults()
		os.Exit(1)
	}

	amFile, err := os.Open(*amPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open acoustic model: %v\n", err)
		os.Exit(1)
	}
	am, err := acoustic.Load(amFile)
	amFile.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load acoustic model: %v\n", err)
		os.Exit(1)
	}

	tm := wfst.BuildTransitionModel(am)

	var graph *wfst.Graph
	if *graphPath != "" {
		gf, err := os.Open(*graphPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open graph: %v\n", err)
			os.Exit(1)
		}
		graph, err = wfst.Load(gf)
		gf.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load graph: %v\n", err)
			os.Exit(1)
		}
	} else {
		dict, err := lexicon.LoadFile(*dictPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load dictionary: %v\n", err)
			os.Exit(1)
		}
		graph, err = wfst.FromLexicon(dict, tm, am)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compile graph: %v\n", err)
			os.Exit(1)
		}
	}

	var lm *language.NGramModel
	if *lmPath != "" {
		lmFile, err := os.Open(*lmPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open language model: %v\n", err)
			os.Exit(1)
		}
		lm, err = language.LoadARPA(lmFile)
		lmFile.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load language model: %v\n", err)
			os.Exit(1)
		}
	}

	samples, _, err := audio.ReadWAVFile(*wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read WAV: %v\n", err)
		os.Exit(1)
	}
	featCfg := feature.DefaultConfig()
	features, err := feature.Extract(samples, featCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extract features: %v\n", err)
		os.Exit(1)
	}

	cfg := session.DefaultConfig()
	var sess *session.Session
	if lm != nil {
		diff := lmdiff.New(lm, graph.Word)
		diff.SetScale(*lmWeight)
		sess = session.NewWithLM(graph, am, tm, diff, cfg)
	} else {
		sess = session.New(graph, am, tm, cfg)
	}

	if err := sess.StartSession(); err != nil {
		fmt.Fprintf(os.Stderr, "start session: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < len(features); i += *chunkFrames {
		end := i + *chunkFrames
		isLast := end >= len(features)
		if isLast {
			end = len(features)
		}
		if err := sess.Advance(features[i:end], isLast); err != nil {
			fmt.Fprintf(os.Stderr, "decode: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "frame %d: endpoint=%v reached_final=%v\n",
				sess.NumFramesDecoded(), sess.EndpointDetected(), sess.ReachedFinal())
		}
		if sess.EndpointDetected() && !isLast {
			break
		}
	}
	sess.StopSession()

	lat, ok := sess.GetLattice()
	if !ok {
		fmt.Fprintln(os.Stderr, "no surviving tokens: empty result")
		os.Exit(1)
	}
	words := lat.BestWords(sess.Words)
	for i, w := range words {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(w)
	}
	fmt.Println()

	if *verbose {
		fmt.Fprintf(os.Stderr, "final relative cost: %.4f\n", sess.FinalRelativeCost())
	}
}
