package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/lexicon"
)

// dictfix reloads a pronunciation dictionary through lexicon.Dictionary,
// re-derives every entry's phoneme sequence from its katakana reading with
// the current KanaToPhonemes, and rewrites the file in the dictionary's
// stable entry-ID order — so a diff between two fix passes shows only the
// entries whose phonemes actually changed, not a reshuffle from file-order
// churn.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: dictfix <dict.txt>")
		fmt.Fprintln(os.Stderr, "  Re-generates phoneme sequences from katakana readings using current KanaToPhonemes.")
		os.Exit(1)
	}

	dict, err := lexicon.LoadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fixed := lexicon.NewDictionary()
	var changedCount, skipped int
	for _, e := range dict.AllEntries() {
		newPhonemes := lexicon.KanaToPhonemes(e.Reading)
		if len(newPhonemes) == 0 {
			skipped++
			continue
		}
		if !phonemesEqual(newPhonemes, e.Phonemes) {
			changedCount++
		}
		fixed.Add(e.Word, e.Reading, newPhonemes)
	}
	fixed.Add("<sil>", "SIL", []acoustic.Phoneme{acoustic.PhonSil})

	for _, e := range fixed.AllEntries() {
		ss := make([]string, len(e.Phonemes))
		for i, p := range e.Phonemes {
			ss[i] = string(p)
		}
		fmt.Printf("%s\t%s\t%s\n", e.Word, e.Reading, strings.Join(ss, " "))
	}

	fmt.Fprintf(os.Stderr, "Total: %d, Fixed: %d, Skipped (empty phonemes): %d\n", len(dict.AllEntries()), changedCount, skipped)
}

func phonemesEqual(a, b []acoustic.Phoneme) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
