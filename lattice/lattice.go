// Package lattice implements the decoder core's output type: an explicit,
// append-only weighted acceptor/transducer representing every surviving
// hypothesis within the lattice beam, plus the word-level compaction and
// shortest-path extraction a caller needs to turn that into text.
package lattice

import "math"

// Weight splits a lattice arc's cost into its two natural components,
// mirroring the decoder core's own graphCost/acousticCost split so callers
// can inspect either independently (e.g. for acoustic-model rescoring).
type Weight struct {
	GraphCost    float64
	AcousticCost float64
}

// Value collapses Weight to the single total cost used for path search.
func (w Weight) Value() float64 { return w.GraphCost + w.AcousticCost }

// Add returns the pointwise sum of two weights.
func (w Weight) Add(o Weight) Weight {
	return Weight{GraphCost: w.GraphCost + o.GraphCost, AcousticCost: w.AcousticCost + o.AcousticCost}
}

// Arc is one lattice transition.
type Arc struct {
	ILabel    int32
	OLabel    int32
	Weight    Weight
	NextState int32
}

type stateRec struct {
	arcs     []Arc
	final    Weight
	hasFinal bool
}

// Lattice is an explicit-state, arc-list FST produced by the decoder
// core's GetBestPath, GetRawLattice and GetRawLatticePruned.
type Lattice struct {
	states []stateRec
	start  int32
}

// New creates an empty Lattice with no start state.
func New() *Lattice { return &Lattice{start: -1} }

// AddState appends a new, non-final state and returns its id. Callers
// building a Lattice by hand (as the decoder core does) must add states in
// topological order: every arc must point to a state id greater than or
// equal to its source, a precondition ShortestPath relies on.
func (l *Lattice) AddState() int32 {
	l.states = append(l.states, stateRec{final: Weight{GraphCost: math.Inf(1)}})
	return int32(len(l.states) - 1)
}

func (l *Lattice) SetStart(s int32)  { l.start = s }
func (l *Lattice) Start() int32      { return l.start }
func (l *Lattice) NumStates() int    { return len(l.states) }

// SetFinal marks state s final with weight w.
func (l *Lattice) SetFinal(s int32, w Weight) {
	l.states[s].final = w
	l.states[s].hasFinal = true
}

// Final returns state s's final weight and whether it is final at all.
func (l *Lattice) Final(s int32) (Weight, bool) {
	return l.states[s].final, l.states[s].hasFinal
}

// AddArc appends an arc leaving state s.
func (l *Lattice) AddArc(s int32, a Arc) {
	l.states[s].arcs = append(l.states[s].arcs, a)
}

// Arcs returns the arcs leaving state s.
func (l *Lattice) Arcs(s int32) []Arc { return l.states[s].arcs }
