package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	transcript "github.com/ieee0824/lattice-decoder"
	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/audio"
	"github.com/ieee0824/lattice-decoder/decoder"
	"github.com/ieee0824/lattice-decoder/language"
	"github.com/ieee0824/lattice-decoder/lexicon"
)

type testCase struct {
	samples  []float64
	expected string
}

type paramSet struct {
	Beam        float64
	LatticeBeam float64
	MaxActive   int
	LMWeight    float64
}

type result struct {
	params  paramSet
	correct int
	total   int
}

func main() {
	amPath := flag.String("am", "", "path to acoustic model")
	dnnPath := flag.String("dnn", "", "path to DNN model")
	lmPath := flag.String("lm", "", "path to LM (ARPA)")
	dictPath := flag.String("dict", "", "path to dictionary")
	manifests := flag.String("manifest", "", "comma-separated manifest.tsv paths")
	beamsStr := flag.String("beams", "12,16,20", "comma-separated pruning beams")
	latticeBeamsStr := flag.String("lattice-beams", "6,10", "comma-separated lattice beams")
	maxActiveStr := flag.String("max-active", "1000,2000,3000", "comma-separated max active tokens")
	lmWeightsStr := flag.String("lm-weights", "0.5,1,1.5,2", "comma-separated LM weights")
	workers := flag.Int("workers", 0, "parallel workers (default: NumCPU)")
	oovProb := flag.Float64("oov-prob", 0, "OOV log10 probability")

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tuner -am AM -lm LM -dict DICT -manifest M1,M2,...")
		fmt.Fprintln(os.Stderr, "  Grid search decoder parameters against test manifests.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *amPath == "" || *lmPath == "" || *dictPath == "" || *manifests == "" {
		flag.Usage()
		os.Exit(1)
	}

	if *workers <= 0 {
		*workers = runtime.NumCPU()
	}

	beams := parseFloats(*beamsStr)
	latticeBeams := parseFloats(*latticeBeamsStr)
	maxActives := parseInts(*maxActiveStr)
	lmWeights := parseFloats(*lmWeightsStr)

	fmt.Fprintf(os.Stderr, "Grid: %d Beam x %d LatticeBeam x %d MaxActive x %d LMWeight = %d combos\n",
		len(beams), len(latticeBeams), len(maxActives), len(lmWeights),
		len(beams)*len(latticeBeams)*len(maxActives)*len(lmWeights))

	fmt.Fprintln(os.Stderr, "Loading models...")
	amFile, err := os.Open(*amPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open AM: %v\n", err)
		os.Exit(1)
	}
	am, err := acoustic.Load(amFile)
	amFile.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load AM: %v\n", err)
		os.Exit(1)
	}

	if *dnnPath != "" {
		f, err := os.Open(*dnnPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open DNN: %v\n", err)
			os.Exit(1)
		}
		dnn, err := acoustic.LoadDNN(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load DNN: %v\n", err)
			os.Exit(1)
		}
		am.DNN = dnn
	}

	lmFile, err := os.Open(*lmPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open LM: %v\n", err)
		os.Exit(1)
	}
	lm, err := language.LoadARPA(lmFile)
	lmFile.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load LM: %v\n", err)
		os.Exit(1)
	}
	if *oovProb != 0 {
		lm.OOVLogProb = *oovProb * math.Ln10
	}

	dict, err := lexicon.LoadFile(*dictPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load dict: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, "Loading test audio...")
	var tests []testCase
	for _, mpath := range strings.Split(*manifests, ",") {
		mpath = strings.TrimSpace(mpath)
		if mpath == "" {
			continue
		}
		tests = append(tests, loadManifest(mpath)...)
	}
	fmt.Fprintf(os.Stderr, "Loaded %d test files\n", len(tests))

	var grid []paramSet
	for _, b := range beams {
		for _, lb := range latticeBeams {
			for _, ma := range maxActives {
				for _, lw := range lmWeights {
					grid = append(grid, paramSet{Beam: b, LatticeBeam: lb, MaxActive: ma, LMWeight: lw})
				}
			}
		}
	}

	fmt.Fprintf(os.Stderr, "Running %d combinations on %d workers...\n", len(grid), *workers)
	results := make([]result, len(grid))
	var wg sync.WaitGroup
	sem := make(chan struct{}, *workers)

	for gi, ps := range grid {
		wg.Add(1)
		sem <- struct{}{}
		go func(gi int, ps paramSet) {
			defer wg.Done()
			defer func() { <-sem }()

			cfg := decoder.DefaultConfig()
			cfg.Beam = ps.Beam
			cfg.LatticeBeam = ps.LatticeBeam
			cfg.MaxActive = ps.MaxActive

			rec, err := transcript.NewRecognizerFromModels(am, lm, dict,
				transcript.WithDecoderConfig(cfg),
				transcript.WithLMWeight(ps.LMWeight),
			)
			if err != nil {
				fmt.Fprintf(os.Stderr, "build recognizer: %v\n", err)
				return
			}

			correct := 0
			for _, tc := range tests {
				r, err := rec.RecognizeSamples(tc.samples)
				if err != nil {
					continue
				}
				if strings.Join(r.Words, " ") == tc.expected {
					correct++
				}
			}
			results[gi] = result{params: ps, correct: correct, total: len(tests)}
		}(gi, ps)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].correct != results[j].correct {
			return results[i].correct > results[j].correct
		}
		return results[i].params.LMWeight < results[j].params.LMWeight
	})

	fmt.Printf("%-8s %-12s %-10s %-10s %8s %6s %8s\n",
		"Beam", "LatticeBeam", "MaxActive", "LMWeight", "Correct", "Total", "Accuracy")
	fmt.Println(strings.Repeat("-", 72))
	for _, r := range results {
		acc := float64(r.correct) / float64(r.total) * 100
		fmt.Printf("%-8.1f %-12.1f %-10d %-10.2f %8d %6d %7.1f%%\n",
			r.params.Beam, r.params.LatticeBeam, r.params.MaxActive, r.params.LMWeight,
			r.correct, r.total, acc)
	}
}

func loadManifest(path string) []testCase {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open manifest %s: %v\n", path, err)
		return nil
	}
	defer f.Close()

	var cases []testCase
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		wavPath := parts[0]
		expected := parts[1]

		samples, _, err := audio.ReadWAVFile(wavPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", wavPath, err)
			continue
		}
		cases = append(cases, testCase{samples: samples, expected: expected})
	}
	return cases
}

func parseFloats(s string) []float64 {
	var vals []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid float %q: %v\n", part, err)
			continue
		}
		vals = append(vals, v)
	}
	return vals
}

func parseInts(s string) []int {
	var vals []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid int %q: %v\n", part, err)
			continue
		}
		vals = append(vals, v)
	}
	return vals
}
