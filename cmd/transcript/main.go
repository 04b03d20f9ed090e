package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	transcript "github.com/ieee0824/lattice-decoder"
	"github.com/ieee0824/lattice-decoder/decoder"
)

func main() {
	amPath := flag.String("am", "", "path to acoustic model file")
	lmPath := flag.String("lm", "", "path to language model (ARPA format)")
	dictPath := flag.String("dict", "", "path to pronunciation dictionary")
	wavPath := flag.String("wav", "", "path to input WAV file")
	beam := flag.Float64("beam", decoder.DefaultConfig().Beam, "decoder pruning beam")
	latticeBeam := flag.Float64("lattice-beam", decoder.DefaultConfig().LatticeBeam, "lattice pruning beam")
	maxActive := flag.Int("max-active", decoder.DefaultConfig().MaxActive, "maximum active tokens per frame")
	oovProb := flag.Float64("oov-prob", 0, "OOV unigram log10 probability (e.g. -5.0, 0=disable)")
	lmWeight := flag.Float64("lm-weight", 1.0, "language model weight")
	verbose := flag.Bool("v", false, "verbose output")

	flag.Parse()

	if *amPath == "" || *lmPath == "" || *dictPath == "" || *wavPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: transcript -am MODEL -lm LM -dict DICT -wav AUDIO")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := decoder.DefaultConfig()
	cfg.Beam = *beam
	cfg.LatticeBeam = *latticeBeam
	cfg.MaxActive = *maxActive

	rec, err := transcript.NewRecognizer(*amPath, *lmPath, *dictPath,
		transcript.WithDecoderConfig(cfg),
		transcript.WithOOVLogProb(*oovProb),
		transcript.WithLMWeight(*lmWeight),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result, err := rec.RecognizeFile(*wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for i, w := range result.Words {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(w)
	}
	fmt.Println()

	if *verbose {
		fmt.Fprintf(os.Stderr, "Final cost: %.4f\n", result.FinalCost)
		if math.IsInf(result.FinalCost, 1) {
			fmt.Fprintln(os.Stderr, "Warning: no token reached a final state")
		}
	}
}
