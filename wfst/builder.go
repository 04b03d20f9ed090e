package wfst

import "math"

// Builder assembles a Graph one state and arc at a time, then freezes it
// into the flat arc-range representation Graph needs for contiguous
// decoder-core access.
type Builder struct {
	final   []float64
	arcsBy  [][]Arc
	start   int32
	started bool
	wordIDs map[string]int32
	words   []string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{wordIDs: make(map[string]int32)}
}

// AddState allocates a new, non-final state and returns its id.
func (b *Builder) AddState() int32 {
	b.final = append(b.final, math.Inf(1))
	b.arcsBy = append(b.arcsBy, nil)
	return int32(len(b.final) - 1)
}

// SetStart designates state as the single start state.
func (b *Builder) SetStart(state int32) {
	b.start = state
	b.started = true
}

// SetFinal marks state final with the given cost.
func (b *Builder) SetFinal(state int32, cost float64) {
	b.final[state] = cost
}

// AddArc appends an arc leaving state.
func (b *Builder) AddArc(state int32, arc Arc) {
	b.arcsBy[state] = append(b.arcsBy[state], arc)
}

// WordID returns the stable olabel for word, minting a new one on first
// use. Word ids are 1-based so 0 stays reserved for Epsilon.
func (b *Builder) WordID(word string) int32 {
	if id, ok := b.wordIDs[word]; ok {
		return id
	}
	b.words = append(b.words, word)
	id := int32(len(b.words))
	b.wordIDs[word] = id
	return id
}

// Build freezes the builder into an immutable Graph.
func (b *Builder) Build() *Graph {
	g := &Graph{
		start:     b.start,
		final:     append([]float64(nil), b.final...),
		stateBase: make([]int32, len(b.arcsBy)),
		words:     append([]string(nil), b.words...),
	}
	for s, arcs := range b.arcsBy {
		g.stateBase[s] = int32(len(g.arcs))
		g.arcs = append(g.arcs, arcs...)
	}
	return g
}
