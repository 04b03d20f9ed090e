package wfst

import (
	"encoding/gob"
	"io"
)

// serialized mirrors Graph's private fields so gob has something exported
// to encode; Graph itself stays immutable and un-exported-field.
type serialized struct {
	Start     int32
	Final     []float64
	StateBase []int32
	Arcs      []Arc
	Words     []string
}

// Save gob-encodes g to w, for cmd/wfstcompile to persist a compiled graph
// for the decoding session to load later without recompiling the lexicon.
func (g *Graph) Save(w io.Writer) error {
	s := serialized{
		Start:     g.start,
		Final:     g.final,
		StateBase: g.stateBase,
		Arcs:      g.arcs,
		Words:     g.words,
	}
	return gob.NewEncoder(w).Encode(&s)
}

// Load decodes a Graph previously written by Save.
func Load(r io.Reader) (*Graph, error) {
	var s serialized
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, err
	}
	return &Graph{
		start:     s.Start,
		final:     s.Final,
		stateBase: s.StateBase,
		arcs:      s.Arcs,
		words:     s.Words,
	}, nil
}
