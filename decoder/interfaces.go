package decoder

import "github.com/ieee0824/lattice-decoder/wfst"

const epsilon = wfst.Epsilon

// Scorer supplies per-frame acoustic costs. Implementations may be called
// repeatedly for the same (frame, ilabel) pair within one AdvanceDecoding
// call and must return the same value each time.
type Scorer interface {
	// NumFramesReady returns how many frames of features are currently
	// available to score, growing as audio streams in.
	NumFramesReady() int
	// IsLastFrame reports whether frame is the final frame of the
	// utterance (frame is 0-based).
	IsLastFrame(frame int) bool
	// LogLikelihood returns the natural-log acoustic likelihood of
	// transition-id ilabel on frame.
	LogLikelihood(frame int, ilabel int32) float64
}

// Wfst is the decoding graph contract: a deterministic-enough WFST whose
// states are iterated by contiguous arc ranges. ilabel 0 is epsilon
// (non-emitting); olabel 0 is epsilon (no word boundary).
type Wfst interface {
	Start() int32
	// Final returns the final cost of state, or +Inf if state is
	// non-final.
	Final(state int32) float64
	// State returns the arc range [arcBase, arcBase+numArcs) for state.
	State(state int32) (arcBase, numArcs int32)
	Arc(index int32) wfst.Arc
}

// LmArc is one transition of an LM-diff FST: the arc taken for word olabel,
// its added weight (to be summed onto the base graph's arc weight), and the
// LM-diff state reached.
type LmArc struct {
	NextState int32
	OLabel    int32
	Weight    float64
}

// LmDiff is an optional LM-difference FST composed on the fly against the
// base Wfst's word labels, used to correct for an LM already baked into the
// base graph (e.g. swapping a small first-pass LM for a larger one).
// Implementations are queried lazily, one arc at a time, and may expand new
// states on demand.
type LmDiff interface {
	Start() int32
	Final(state int32) float64
	// GetArc returns the arc out of state for word olabel, or ok=false if
	// none exists (a graph/LM mismatch).
	GetArc(state int32, olabel int32) (arc LmArc, ok bool)
}
