package decoder

import "math"

// Config mirrors the teacher's flat options-struct style (see
// acoustic/model.go's Config) rather than a functional-options constructor:
// the decoder core is performance-sensitive internal machinery, not a
// public client-facing type, so a plain struct with a DefaultConfig
// constructor fits better than Option funcs (those are reserved for
// session.Recognizer, the outward-facing type).
type Config struct {
	Beam        float64
	MaxActive   int
	MinActive   int
	LatticeBeam float64

	// PruneInterval is how many frames elapse between incremental backward
	// prunes of the already-decoded token net.
	PruneInterval int

	// BeamDelta compensates for the fact that token costs computed for the
	// adaptive-beam cutoff on frame t+1 use an estimate (the best token's
	// cost on frame t), not the true best cost on frame t+1.
	BeamDelta float64

	// HashRatio controls how eagerly the frontier hash grows relative to
	// the live token count.
	HashRatio float64

	// PruneScale scales LatticeBeam down for the interior incremental
	// prunes so they stay conservative relative to the final prune.
	PruneScale float64

	// TokenPoolRealloc and LinkPoolRealloc size the arena's slab growth
	// increments.
	TokenPoolRealloc int32
	LinkPoolRealloc  int32
}

// DefaultConfig returns the conventional online-decoding tuning: a
// reasonably wide beam, unbounded max-active, and a lattice beam comparable
// to the pruning beam.
func DefaultConfig() Config {
	return Config{
		Beam:             16.0,
		MaxActive:        math.MaxInt32,
		MinActive:        200,
		LatticeBeam:      10.0,
		PruneInterval:    25,
		BeamDelta:        0.5,
		HashRatio:        2.0,
		PruneScale:       0.1,
		TokenPoolRealloc: 512,
		LinkPoolRealloc:  512,
	}
}
