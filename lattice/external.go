package lattice

import (
	"strconv"

	extlattice "github.com/veritone/go-lattice/lattice"
)

// FrameDurationMs is the decoder's fixed frame shift, used only to turn
// frame-indexed best-path timing into millisecond spans for ToExternal.
const FrameDurationMs = 10

// WordTiming pairs a recognized word with the frame range its arc spanned.
type WordTiming struct {
	Word       string
	StartFrame int
	EndFrame   int
	Cost       float64
}

// BestWordTimings walks the best path of l (counting ilabel != epsilon as
// one frame consumed, matching the decoder core's own frame accounting)
// and returns one WordTiming per word boundary.
func BestWordTimings(l *Lattice, wordText func(olabel int32) string) []WordTiming {
	path := ShortestPath(l)
	var out []WordTiming
	frame := 0
	wordStart := 0
	wordCost := 0.0
	for _, a := range path {
		wordCost += a.Weight.Value()
		if a.ILabel != 0 {
			frame++
		}
		if a.OLabel != 0 {
			out = append(out, WordTiming{
				Word:       wordText(a.OLabel),
				StartFrame: wordStart,
				EndFrame:   frame,
				Cost:       wordCost,
			})
			wordStart = frame
			wordCost = 0
		}
	}
	return out
}

// ToExternal converts the best path of l into the third-party interchange
// format used to hand a transcript off to downstream consumers (the same
// format a pocketsphinx-backed ASR service in this shop already speaks).
// Only the 1-best word sequence is represented; CompactLattice's
// alternative paths are not encoded, matching that this conversion is
// meant for final output, not for confusion-network rescoring.
func ToExternal(l *Lattice, wordText func(olabel int32) string) extlattice.Lattice {
	timings := BestWordTimings(l, wordText)
	out := make(extlattice.Lattice, len(timings))
	for i, wt := range timings {
		confidence := int(-wt.Cost)
		u := extlattice.Utterance{
			Index:       i,
			StartTimeMs: wt.StartFrame * FrameDurationMs,
			StopTimeMs:  wt.EndFrame * FrameDurationMs,
			DurationMs:  (wt.EndFrame - wt.StartFrame) * FrameDurationMs,
			Words: extlattice.UtteranceWords{
				&extlattice.UtteranceWord{
					Word:             wt.Word,
					Confidence:       confidence,
					BestPathForward:  true,
					BestPathBackward: true,
					SpanningLength:   1,
				},
			},
		}
		out[strconv.Itoa(i)] = &u
	}
	return out
}
