package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/lexicon"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: dictconv <ipadic-csv-files...>")
		fmt.Fprintln(os.Stderr, "  Converts IPAdic CSV files to transcript dictionary format.")
		fmt.Fprintln(os.Stderr, "  Supports glob patterns: dictconv /path/to/ipadic/*.csv")
		fmt.Fprintln(os.Stderr, "  Output goes to stdout.")
		os.Exit(1)
	}

	// Expand glob patterns
	var files []string
	for _, arg := range os.Args[1:] {
		matches, err := filepath.Glob(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad pattern %q: %v\n", arg, err)
			os.Exit(1)
		}
		if matches == nil {
			// No glob match — treat as literal path
			files = append(files, arg)
		} else {
			files = append(files, matches...)
		}
	}

	seen := make(map[string]bool) // "word\treading\tphonemes" -> true
	dict := lexicon.NewDictionary()

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
			continue
		}
		r := csv.NewReader(f)
		r.LazyQuotes = true
		r.FieldsPerRecord = -1 // variable fields

		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				continue // skip malformed lines
			}
			// IPAdic CSV: field[0]=表層形, field[11]=読み, field[12]=発音
			if len(record) < 13 {
				continue
			}
			word := record[0]
			reading := record[11]
			pronunciation := record[12]

			if pronunciation == "" || pronunciation == "*" {
				pronunciation = reading
			}
			if pronunciation == "" || pronunciation == "*" {
				continue
			}

			phonemes := lexicon.KanaToPhonemes(pronunciation)
			if len(phonemes) == 0 {
				continue
			}

			phStr := phonemeString(phonemes)
			key := word + "\t" + reading + "\t" + phStr
			if seen[key] {
				continue
			}
			seen[key] = true
			dict.Add(word, reading, phonemes)
		}
		f.Close()
	}

	// Sort a stable-ID snapshot by word for deterministic output, ties
	// broken by reading (and, failing that, by the dictionary's own
	// insertion-order ID so equal word/reading pairs from different source
	// files stay in a fixed relative order).
	entries := dict.AllEntries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Word != entries[j].Word {
			return entries[i].Word < entries[j].Word
		}
		if entries[i].Reading != entries[j].Reading {
			return entries[i].Reading < entries[j].Reading
		}
		return entries[i].ID < entries[j].ID
	})

	w := os.Stdout
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Word, e.Reading, phonemeString(e.Phonemes))
	}

	fmt.Fprintf(os.Stderr, "Converted %d entries from %d files\n", len(entries), len(files))
}

func phonemeString(ps []acoustic.Phoneme) string {
	ss := make([]string, len(ps))
	for i, p := range ps {
		ss[i] = string(p)
	}
	return strings.Join(ss, " ")
}
