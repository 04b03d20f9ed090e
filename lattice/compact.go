package lattice

// CompactLattice is a word-level view of a Lattice: every arc whose output
// label is non-epsilon is a word boundary. Unlike Kaldi's
// DeterminizeLatticePhonePruned, this does not merge parallel phone paths
// between two word boundaries into a single weighted arc — that
// determinization is an external, offline concern (see the decoder core's
// design notes on lattice_beam/determinize_lattice being consumed by
// calling code, not the core) and belongs to the session package that
// calls this, not to the lattice package itself.
type CompactLattice struct {
	*Lattice
}

// Compact wraps l for word-level traversal.
func Compact(l *Lattice) *CompactLattice {
	return &CompactLattice{Lattice: l}
}

// WordArcs returns the arcs leaving s that carry a word (non-epsilon
// output label).
func (c *CompactLattice) WordArcs(s int32) []Arc {
	var out []Arc
	for _, a := range c.Arcs(s) {
		if a.OLabel != 0 {
			out = append(out, a)
		}
	}
	return out
}

// BestWords extracts the word sequence along the best path, given a
// wordText function resolving an output label to text.
func (c *CompactLattice) BestWords(wordText func(olabel int32) string) []string {
	path := ShortestPath(c.Lattice)
	words := make([]string, 0, len(path))
	for _, a := range path {
		if a.OLabel != 0 {
			words = append(words, wordText(a.OLabel))
		}
	}
	return words
}
