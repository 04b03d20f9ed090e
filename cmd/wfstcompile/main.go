// Command wfstcompile compiles a pronunciation dictionary and acoustic
// model into a decoding graph and writes it to disk, so a streaming
// recognizer can load a pre-built graph instead of recompiling the lexicon
// on every process start.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/lexicon"
	"github.com/ieee0824/lattice-decoder/wfst"
)

func main() {
	amPath := flag.String("am", "", "path to acoustic model file")
	dictPath := flag.String("dict", "", "path to pronunciation dictionary")
	outPath := flag.String("out", "", "path to write the compiled graph")
	flag.Parse()

	if *amPath == "" || *dictPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: wfstcompile -am MODEL -dict DICT -out GRAPH")
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

	dict, err := lexicon.LoadFile(*dictPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load dictionary: %v\n", err)
		os.Exit(1)
	}

	tm := wfst.BuildTransitionModel(am)
	g, err := wfst.FromLexicon(dict, tm, am)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile graph: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := g.Save(out); err != nil {
		fmt.Fprintf(os.Stderr, "write graph: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "compiled %d states, %d transition ids\n", g.NumStates(), tm.NumTransitionIDs())
}
