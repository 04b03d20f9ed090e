// Package scorer adapts the acoustic model's per-phoneme GMMs into the
// decoder core's Scorer contract: one log-likelihood per (frame,
// transition-id), with transition-ids resolved through a
// wfst.TransitionModel so the graph and the scorer agree on what an
// ilabel means without depending on each other.
package scorer

import (
	"fmt"

	"github.com/ieee0824/lattice-decoder/acoustic"
	"github.com/ieee0824/lattice-decoder/wfst"
)

// Scorer evaluates GMM log-likelihoods against a fixed block of
// pre-extracted feature frames (an online/streaming decode appends to
// Frames and calls AppendFrames as audio arrives; a batch decode builds it
// once up front).
type Scorer struct {
	am     *acoustic.AcousticModel
	tm     *wfst.TransitionModel
	frames [][]float64
	isLast bool

	// cache memoizes LogLikelihood per (frame, ilabel): the decoder's
	// contract explicitly allows repeated calls for the same pair within
	// one frame's emitting expansion (every arc of a phoneme's self-loop
	// and forward transition shares a transition-id, so without this the
	// same GMM would be evaluated twice per arc pair).
	cache      []map[int32]float64
}

// New creates a Scorer over am using tm's transition-id assignment.
func New(am *acoustic.AcousticModel, tm *wfst.TransitionModel) *Scorer {
	return &Scorer{am: am, tm: tm}
}

// AppendFrames adds newly available feature frames, for streaming
// decoding. Passing isLast=true on the final call marks the utterance
// complete so IsLastFrame reports correctly.
func (s *Scorer) AppendFrames(frames [][]float64, isLast bool) {
	s.frames = append(s.frames, frames...)
	for len(s.cache) < len(s.frames) {
		s.cache = append(s.cache, nil)
	}
	s.isLast = isLast
}

// NumFramesReady implements decoder.Scorer.
func (s *Scorer) NumFramesReady() int { return len(s.frames) }

// IsLastFrame implements decoder.Scorer.
func (s *Scorer) IsLastFrame(frame int) bool {
	return s.isLast && frame == len(s.frames)-1
}

// LogLikelihood implements decoder.Scorer, evaluating the GMM state that
// tm.Entry(ilabel) resolves to against frame's feature vector.
func (s *Scorer) LogLikelihood(frame int, ilabel int32) float64 {
	if s.cache[frame] == nil {
		s.cache[frame] = make(map[int32]float64)
	}
	if v, ok := s.cache[frame][ilabel]; ok {
		return v
	}
	entry := s.tm.Entry(ilabel)
	hmm, ok := s.am.Phonemes[entry.Phoneme]
	if !ok {
		panic(fmt.Sprintf("scorer: transition-id %d resolves to unknown phoneme %q", ilabel, entry.Phoneme))
	}
	ll := hmm.LogLikelihood(entry.StateIdx, s.frames[frame])
	s.cache[frame][ilabel] = ll
	return ll
}
