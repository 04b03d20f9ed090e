package wfst

import (
	"fmt"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/lexicon"
)

// FromLexicon compiles a word-loop recognition graph: a single shared state
// that, for every pronunciation of every word in dict, expands through that
// word's phoneme HMMs (self-loop and forward arcs both emitting, carrying
// the transition-id tm assigns to that phoneme/state pair) and loops back,
// with the word id placed as the output label on the arc entering the
// word's first phoneme. This is the continuous-dictation topology: any
// word may follow any other, weighted uniformly (a real system would
// instead compose this against a language-model FST; see lmdiff for the
// on-the-fly alternative this decoder uses instead of baking an LM in
// here).
//
// Pronunciations containing a phoneme absent from am are skipped. An error
// is returned only if no word ends up with any usable pronunciation.
//
// Entries are walked in stable ID (insertion) order via dict.AllEntries,
// not dict.Words()'s map order: word ids are assigned by wfst.Builder the
// first time each word is seen, so an unstable traversal order would make
// the compiled Graph's word-id assignment (and thus anything downstream
// that persists it, e.g. Graph.Save) vary run to run for the same
// dictionary.
func FromLexicon(dict *lexicon.Dictionary, tm *TransitionModel, am *acoustic.AcousticModel) (*Graph, error) {
	b := NewBuilder()
	loop := b.AddState()
	b.SetStart(loop)
	b.SetFinal(loop, 0)

	usable := 0
	for _, entry := range dict.AllEntries() {
		if addPronunciation(b, loop, tm, am, entry.Word, entry.Phonemes) {
			usable++
		}
	}
	if usable == 0 {
		return nil, fmt.Errorf("wfst: lexicon produced no usable pronunciation (check phoneme coverage against the acoustic model)")
	}
	return b.Build(), nil
}

// addPronunciation appends one word.phonemes pronunciation path from loop
// back to loop. It returns false (adding nothing) if any phoneme is
// missing from am.
func addPronunciation(b *Builder, loop int32, tm *TransitionModel, am *acoustic.AcousticModel, word string, phonemes []acoustic.Phoneme) bool {
	if len(phonemes) == 0 {
		return false
	}
	for _, ph := range phonemes {
		if _, ok := am.Phonemes[ph]; !ok {
			return false
		}
	}

	wordID := b.WordID(word)
	cur := loop
	firstArc := true
	for _, ph := range phonemes {
		hmm := am.Phonemes[ph]
		states := make([]int32, acoustic.NumEmittingStates+1) // 1-indexed
		for i := 1; i <= acoustic.NumEmittingStates; i++ {
			states[i] = b.AddState()
		}

		entryOlabel := Epsilon
		if firstArc {
			entryOlabel = wordID
			firstArc = false
		}
		b.AddArc(cur, Arc{ILabel: Epsilon, OLabel: entryOlabel, Weight: -hmm.TransLog[0][1], Dest: states[1]})

		for i := 1; i <= acoustic.NumEmittingStates; i++ {
			tid := tm.TransitionID(ph, i)
			b.AddArc(states[i], Arc{ILabel: tid, OLabel: Epsilon, Weight: -hmm.TransLog[i][i], Dest: states[i]})
			if i < acoustic.NumEmittingStates {
				b.AddArc(states[i], Arc{ILabel: tid, OLabel: Epsilon, Weight: -hmm.TransLog[i][i+1], Dest: states[i+1]})
			}
		}
		exit := b.AddState()
		lastEmitting := acoustic.NumEmittingStates
		lastTid := tm.TransitionID(ph, lastEmitting)
		b.AddArc(states[lastEmitting], Arc{ILabel: lastTid, OLabel: Epsilon, Weight: -hmm.TransLog[lastEmitting][lastEmitting+1], Dest: exit})
		cur = exit
	}
	b.AddArc(cur, Arc{ILabel: Epsilon, OLabel: Epsilon, Weight: 0, Dest: loop})
	return true
}
