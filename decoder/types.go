package decoder

import "github.com/ieee0824/lattice-decoder/internal/pool"

// token is one search hypothesis at one frame. Tokens live in an arena
// (pool.Pool[token]) and reference each other through pool.Handle rather
// than Go pointers, the arena-indexed realization of the pointer-rich
// token/link DAG.
type token struct {
	totalCost   float64
	extraCost   float64
	links       pool.Handle // head of this token's outgoing forwardLink list
	next        pool.Handle // next token in this frame's list (head-insert)
	backpointer pool.Handle // token on the previous emitting frame, or invalid
}

// forwardLink is one edge in the token DAG, corresponding to one WFST arc
// traversal.
type forwardLink struct {
	dstTok       pool.Handle
	ilabel       int32
	olabel       int32
	graphCost    float64
	acousticCost float64
	next         pool.Handle
}

// frameSlot is the per-frame header: the head of that frame's token list,
// plus the dirty flags that drive incremental backward pruning.
type frameSlot struct {
	toks                  pool.Handle
	mustPruneForwardLinks bool
	mustPruneTokens       bool
}

// stateKey is the hash key for the frontier hash: a bare WFST state id, or
// a composed (look-ahead state, LM state) pair when an LM-diff FST is
// attached. lm is -1 when no LM-diff FST is in use, so the zero value of
// the "no LM" case is still a well-defined, hashable key.
type stateKey struct {
	la int32
	lm int32
}

func hashStateKey(k stateKey) uint64 {
	h := uint64(uint32(k.la)) * 2654435761
	h ^= uint64(uint32(k.lm)) * 0x9E3779B97F4A7C15
	return h
}
