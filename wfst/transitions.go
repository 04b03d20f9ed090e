package wfst

import (
	"github.com/ieee0824/lattice-decoder/acoustic"
)

// TransitionModel assigns a stable transition-id (the decoder's Arc.ILabel
// space) to every (phoneme, emitting-state) pair the acoustic model can
// score, so the graph and the acoustic scorer agree on what an ilabel
// means without either depending on the other's internals.
//
// Ids are assigned in sorted-phoneme order so the mapping is reproducible
// across a Save/Load round trip without needing to serialize it.
type TransitionModel struct {
	entries []TransEntry
	ids     map[acoustic.Phoneme][acoustic.NumEmittingStates + 1]int32
}

// TransEntry resolves one transition-id back to the HMM and emitting-state
// index (1..NumEmittingStates) a Scorer should evaluate.
type TransEntry struct {
	Phoneme  acoustic.Phoneme
	StateIdx int
}

// BuildTransitionModel enumerates every emitting state of every phoneme in
// am, in sorted phoneme-name order.
func BuildTransitionModel(am *acoustic.AcousticModel) *TransitionModel {
	tm := &TransitionModel{
		ids: make(map[acoustic.Phoneme][acoustic.NumEmittingStates + 1]int32),
	}
	for _, ph := range am.SortedPhonemes() {
		var row [acoustic.NumEmittingStates + 1]int32
		for s := 1; s <= acoustic.NumEmittingStates; s++ {
			row[s] = int32(len(tm.entries))
			tm.entries = append(tm.entries, TransEntry{Phoneme: ph, StateIdx: s})
		}
		tm.ids[ph] = row
	}
	return tm
}

// TransitionID returns the ilabel for (phoneme, stateIdx).
func (tm *TransitionModel) TransitionID(phoneme acoustic.Phoneme, stateIdx int) int32 {
	return tm.ids[phoneme][stateIdx]
}

// Entry resolves a transition-id back to its (phoneme, state) pair. The
// zero TransEntry is returned for an out-of-range id.
func (tm *TransitionModel) Entry(id int32) TransEntry {
	if id < 0 || int(id) >= len(tm.entries) {
		return TransEntry{}
	}
	return tm.entries[id]
}

// NumTransitionIDs returns the total number of transition-ids minted.
func (tm *TransitionModel) NumTransitionIDs() int32 { return int32(len(tm.entries)) }
