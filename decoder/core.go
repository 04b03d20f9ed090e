// Package decoder implements a lattice-generating token-passing search
// over a WFST, the online-recognition analogue of Kaldi's
// LatticeFasterDecoder: a frontier hash of live tokens, emitting/
// non-emitting propagation with an adaptive pruning beam, periodic
// backward extra-cost pruning, and lattice extraction (best path, raw
// lattice, beam-pruned raw lattice) from whatever of the token/ForwardLink
// DAG survives.
package decoder

import (
	"errors"
	"math"

	"github.com/ieee0824/lattice-decoder/internal/hashlist"
	"github.com/ieee0824/lattice-decoder/internal/pool"
	"github.com/ieee0824/lattice-decoder/wfst"
)

// Core is the decoder search state for one utterance. It is not safe for
// concurrent use; a session wraps one Core per in-flight utterance.
type Core struct {
	fst Wfst
	lm  LmDiff // nil if no LM-diff FST is attached

	cfg Config

	tokPool  *pool.Pool[token]
	linkPool *pool.Pool[forwardLink]

	hash *hashlist.List[stateKey, pool.Handle]

	frames []frameSlot

	queue   []stateKey
	scratch []float64

	costOffsets []float64

	numToks int

	warnedEmptyFrontier bool
	warnedNoFinalToken  bool

	decodingFinalized bool
	finalCosts        map[pool.Handle]float64
	finalRelativeCost float64
	finalBestCost     float64

	warnings []string
}

// New creates a Core searching g with no LM-diff FST attached.
func New(g Wfst, cfg Config) *Core {
	return newCore(g, nil, cfg)
}

// NewWithLM creates a Core that composes an LM-diff FST on the fly against
// g's word labels.
func NewWithLM(g Wfst, lm LmDiff, cfg Config) *Core {
	return newCore(g, lm, cfg)
}

func newCore(g Wfst, lm LmDiff, cfg Config) *Core {
	c := &Core{
		fst:      g,
		lm:       lm,
		cfg:      cfg,
		tokPool:  pool.New[token](cfg.TokenPoolRealloc),
		linkPool: pool.New[forwardLink](cfg.LinkPoolRealloc),
	}
	c.hash = hashlist.New[stateKey, pool.Handle](hashStateKey, 1000)
	return c
}

// NumFramesDecoded returns how many emitting frames have been processed so
// far (the frontier index).
func (c *Core) NumFramesDecoded() int {
	if len(c.frames) == 0 {
		return 0
	}
	return len(c.frames) - 1
}

// Warnings returns every warning recorded so far (empty frontiers,
// negative extra-costs, missing final tokens), most-recent last. Warnings
// never abort decoding; they flag conditions a caller may want to log.
func (c *Core) Warnings() []string { return c.warnings }

func (c *Core) recordWarning(msg string) { c.warnings = append(c.warnings, msg) }

func (c *Core) warnOnce(flag *bool, msg string) {
	if !*flag {
		*flag = true
		c.recordWarning(msg)
	}
}

// InitDecoding resets the Core to decode a new utterance from g's start
// state.
func (c *Core) InitDecoding() error {
	c.deleteElems(c.hash.Clear())
	c.clearTokenNet()
	c.costOffsets = c.costOffsets[:0]
	c.warnedEmptyFrontier = false
	c.warnedNoFinalToken = false
	c.decodingFinalized = false
	c.finalCosts = nil
	c.warnings = nil

	start := c.fst.Start()
	if start < 0 {
		return &GraphError{Op: "InitDecoding", Err: ErrNoStartState}
	}

	c.frames = append(c.frames, frameSlot{})
	h := c.tokPool.Alloc()
	c.numToks++

	lmState := int32(-1)
	if c.lm != nil {
		lmState = c.lm.Start()
	}
	c.frames[0].toks = h
	c.hash.Insert(stateKey{la: start, lm: lmState}, h)

	return c.processNonemitting(c.cfg.Beam)
}

// AdvanceDecoding processes frames until scorer has no more ready, or until
// maxFrames additional frames have been decoded (maxFrames < 0 means no
// limit). It returns a *GraphError if the graph or LM-diff FST is
// inconsistent, or a *ContractError if called out of sequence.
func (c *Core) AdvanceDecoding(scorer Scorer, maxFrames int) error {
	if len(c.frames) == 0 {
		return &ContractError{Op: "AdvanceDecoding", Err: errors.New("InitDecoding must be called first")}
	}
	if c.decodingFinalized {
		return &ContractError{Op: "AdvanceDecoding", Err: ErrDecodingFinalized}
	}
	numFramesReady := scorer.NumFramesReady()
	if numFramesReady < c.NumFramesDecoded() {
		return &ContractError{Op: "AdvanceDecoding", Err: errors.New("scorer reports fewer frames ready than already decoded")}
	}

	target := numFramesReady
	if maxFrames >= 0 {
		if d := c.NumFramesDecoded() + maxFrames; d < target {
			target = d
		}
	}

	for c.NumFramesDecoded() < target {
		if c.NumFramesDecoded()%c.cfg.PruneInterval == 0 {
			c.pruneTokenNet(c.cfg.LatticeBeam * c.cfg.PruneScale)
		}
		cutoff, err := c.processEmitting(scorer)
		if err != nil {
			return err
		}
		if err := c.processNonemitting(cutoff); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeDecoding does a final backward prune pass using final costs, and
// forbids any further AdvanceDecoding call. After this, GetBestPath,
// GetRawLattice and GetRawLatticePruned must be called with useFinal=true.
func (c *Core) FinalizeDecoding() {
	endTime := c.NumFramesDecoded()
	c.pruneForwardLinksFinal()
	for t := endTime - 1; t >= 0; t-- {
		c.pruneForwardLinks(t, 0.0)
		c.pruneTokenList(t + 1)
	}
	c.pruneTokenList(0)
}

// Finalized reports whether FinalizeDecoding has been called, which governs
// whether GetBestPath, GetRawLattice and GetRawLatticePruned must be called
// with useFinal=true.
func (c *Core) Finalized() bool { return c.decodingFinalized }

// ReachedFinal reports whether any currently-live token on the last
// decoded frame sits on a WFST final state (ignoring the magnitude of the
// final cost).
func (c *Core) ReachedFinal() bool {
	_, rel, _ := c.computeFinalCosts()
	return !math.IsInf(rel, 1)
}

// FinalRelativeCost returns bestCostWithFinal - bestCost, i.e. how much
// worse off the best path is for being forced to end now versus
// continuing. +Inf means no token has reached a final state.
func (c *Core) FinalRelativeCost() float64 {
	if c.decodingFinalized {
		return c.finalRelativeCost
	}
	_, rel, _ := c.computeFinalCosts()
	return rel
}

func (c *Core) newLink(dst pool.Handle, ilabel, olabel int32, graphCost, acousticCost float64, next pool.Handle) pool.Handle {
	h := c.linkPool.Alloc()
	*c.linkPool.Get(h) = forwardLink{
		dstTok:       dst,
		ilabel:       ilabel,
		olabel:       olabel,
		graphCost:    graphCost,
		acousticCost: acousticCost,
		next:         next,
	}
	return h
}

func (c *Core) deleteLinksFromToken(tok *token) {
	h := tok.links
	for h.Valid() {
		l := c.linkPool.Get(h)
		next := l.next
		c.linkPool.Free(h)
		h = next
	}
	tok.links = pool.Handle{}
}

func (c *Core) deleteToken(h pool.Handle) {
	tok := c.tokPool.Get(h)
	c.deleteLinksFromToken(tok)
	c.tokPool.Free(h)
	c.numToks--
}

func (c *Core) deleteElems(list *hashlist.Elem[stateKey, pool.Handle]) {
	for e := list; e != nil; {
		next := e.Next()
		c.hash.Delete(e)
		e = next
	}
}

func (c *Core) clearTokenNet() {
	for _, fr := range c.frames {
		h := fr.toks
		for h.Valid() {
			tok := c.tokPool.Get(h)
			next := tok.next
			c.deleteLinksFromToken(tok)
			c.tokPool.Free(h)
			c.numToks--
			h = next
		}
	}
	c.frames = c.frames[:0]
}

func (c *Core) possiblyResizeHash(numToks int) {
	target := int(float64(numToks) * c.cfg.HashRatio)
	if target > c.hash.Size() {
		c.hash.SetSize(target)
	}
}

// findOrAddToken looks up key in the current frontier hash; if found it
// relaxes the existing token's cost (keeping the cheaper backpointer), and
// if absent it allocates a new token on frame frameIdx. It returns the
// token handle and whether this call actually improved/created it (the
// signal ProcessNonemitting uses to decide whether to re-enqueue key for
// further epsilon expansion).
func (c *Core) findOrAddToken(key stateKey, frameIdx int32, totalCost float64, backpointer pool.Handle) (pool.Handle, bool) {
	if e := c.hash.Find(key); e != nil {
		h := e.Val
		tok := c.tokPool.Get(h)
		if totalCost < tok.totalCost {
			tok.totalCost = totalCost
			tok.backpointer = backpointer
			return h, true
		}
		return h, false
	}
	h := c.tokPool.Alloc()
	*c.tokPool.Get(h) = token{
		totalCost:   totalCost,
		extraCost:   0,
		next:        c.frames[frameIdx].toks,
		backpointer: backpointer,
	}
	c.frames[frameIdx].toks = h
	c.numToks++
	c.hash.Insert(key, h)
	return h, true
}

// lmStep resolves the LM-diff contribution of one WFST arc, used
// identically by both ProcessEmitting's pre-scan of the best token and its
// main expansion of every surviving token, so the two never drift apart
// on how an LM-diff weight is folded into the arc's graph cost.
func (c *Core) lmStep(arc wfst.Arc, lmState int32) (graphCost float64, olabel int32, nextLmState int32, ok bool) {
	if c.lm == nil {
		return arc.Weight, arc.OLabel, -1, true
	}
	if arc.OLabel == epsilon {
		return arc.Weight, epsilon, lmState, true
	}
	lmArc, found := c.lm.GetArc(lmState, arc.OLabel)
	if !found {
		return 0, 0, 0, false
	}
	return arc.Weight + lmArc.Weight, lmArc.OLabel, lmArc.NextState, true
}
