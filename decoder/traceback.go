package decoder

import (
	"fmt"
	"math"

	"github.com/ieee0824/lattice-decoder/internal/pool"
	"github.com/ieee0824/lattice-decoder/lattice"
)

// BestPathIterator walks the best path backward from the last decoded
// frame to the start. The zero value is Done.
type BestPathIterator struct {
	tok   pool.Handle
	frame int
}

// Done reports whether the iterator has walked back past the start.
func (it BestPathIterator) Done() bool { return !it.tok.Valid() }

// BestPathEnd locates the cheapest token on the last decoded frame
// (optionally folding in WFST final costs) and returns an iterator
// positioned there, plus that token's final cost (0 if useFinal is false
// or it has none).
func (c *Core) BestPathEnd(useFinal bool) (BestPathIterator, float64) {
	if c.decodingFinalized && !useFinal {
		panic("decoder: cannot call BestPathEnd with useFinal=false after FinalizeDecoding")
	}
	assertf(c.NumFramesDecoded() > 0, "BestPathEnd called with no frames decoded")

	finalCosts := c.finalCosts
	if !c.decodingFinalized {
		if useFinal {
			finalCosts, _, _ = c.computeFinalCosts()
		} else {
			finalCosts = nil
		}
	}

	bestCost := math.Inf(1)
	bestFinalCost := 0.0
	var best pool.Handle

	last := c.NumFramesDecoded()
	for h := c.frames[last].toks; h.Valid(); {
		tok := c.tokPool.Get(h)
		cost := tok.totalCost
		finalCost := 0.0
		if useFinal && len(finalCosts) > 0 {
			if fc, ok := finalCosts[h]; ok {
				finalCost = fc
				cost += finalCost
			} else {
				cost = math.Inf(1)
			}
		}
		if cost < bestCost {
			bestCost = cost
			best = h
			bestFinalCost = finalCost
		}
		h = tok.next
	}
	if !best.Valid() {
		c.recordWarning("no final token found")
	}
	return BestPathIterator{tok: best, frame: last - 1}, bestFinalCost
}

// TraceBackBestPath follows one backward step of it, returning the
// predecessor iterator and the lattice arc that was traversed to reach
// it's token.
func (c *Core) TraceBackBestPath(it BestPathIterator) (BestPathIterator, lattice.Arc) {
	assertf(!it.Done(), "TraceBackBestPath called on a done iterator")
	tok := c.tokPool.Get(it.tok)
	curT, retT := it.frame, it.frame

	var arc lattice.Arc
	if !tok.backpointer.Valid() {
		return BestPathIterator{frame: retT}, arc
	}

	back := c.tokPool.Get(tok.backpointer)
	found := false
	for l := back.links; l.Valid(); {
		link := c.linkPool.Get(l)
		if link.dstTok == it.tok {
			graphCost, acousticCost := link.graphCost, link.acousticCost
			if link.ilabel != epsilon {
				acousticCost -= c.costOffsets[curT]
				retT--
			}
			arc = lattice.Arc{
				ILabel: link.ilabel,
				OLabel: link.olabel,
				Weight: lattice.Weight{GraphCost: graphCost, AcousticCost: acousticCost},
			}
			found = true
			break
		}
		l = link.next
	}
	assertf(found, "error tracing best path back (bug in token-pruning algorithm)")
	return BestPathIterator{tok: tok.backpointer, frame: retT}, arc
}

// GetBestPath extracts the single best path as a two-state-per-arc
// Lattice. It returns false (with no lattice) if no token reached the last
// frame.
func (c *Core) GetBestPath(useFinal bool) (*lattice.Lattice, bool) {
	it, finalCost := c.BestPathEnd(useFinal)
	if it.Done() {
		return nil, false
	}
	l := lattice.New()
	state := l.AddState()
	l.SetFinal(state, lattice.Weight{GraphCost: finalCost})

	for !it.Done() {
		var arc lattice.Arc
		it, arc = c.TraceBackBestPath(it)
		arc.NextState = state
		newState := l.AddState()
		l.AddArc(newState, arc)
		state = newState
	}
	l.SetStart(state)
	return l, true
}

// GetRawLattice extracts every surviving token/forward-link as an explicit
// Lattice, one state per token across every decoded frame. It returns
// false if any frame has no surviving tokens at all.
func (c *Core) GetRawLattice(useFinal bool) (*lattice.Lattice, bool) {
	if c.decodingFinalized && !useFinal {
		panic("decoder: cannot call GetRawLattice with useFinal=false after FinalizeDecoding")
	}
	finalCosts := c.finalCosts
	if !c.decodingFinalized {
		if useFinal {
			finalCosts, _, _ = c.computeFinalCosts()
		} else {
			finalCosts = nil
		}
	}

	numFrames := c.NumFramesDecoded()
	assertf(numFrames > 0, "GetRawLattice called with no frames decoded")

	l := lattice.New()
	tokMap := make(map[pool.Handle]int32, c.numToks)

	for f := 0; f <= numFrames; f++ {
		if !c.frames[f].toks.Valid() {
			c.recordWarning(fmt.Sprintf("no tokens active on frame %d: not producing lattice", f))
			return nil, false
		}
		for _, h := range c.topSortTokens(c.frames[f].toks) {
			if h.Valid() {
				tokMap[h] = l.AddState()
			}
		}
	}
	l.SetStart(0)

	for f := 0; f <= numFrames; f++ {
		for h := c.frames[f].toks; h.Valid(); {
			tok := c.tokPool.Get(h)
			curState := tokMap[h]
			for lh := tok.links; lh.Valid(); {
				link := c.linkPool.Get(lh)
				nextState, ok := tokMap[link.dstTok]
				assertf(ok, "dangling forward link while extracting raw lattice")
				costOffset := 0.0
				if link.ilabel != epsilon {
					costOffset = c.costOffsets[f]
				}
				l.AddArc(curState, lattice.Arc{
					ILabel:    link.ilabel,
					OLabel:    link.olabel,
					Weight:    lattice.Weight{GraphCost: link.graphCost, AcousticCost: link.acousticCost - costOffset},
					NextState: nextState,
				})
				lh = link.next
			}
			if f == numFrames {
				if useFinal && len(finalCosts) > 0 {
					if fc, ok := finalCosts[h]; ok {
						l.SetFinal(curState, lattice.Weight{GraphCost: fc})
					}
				} else {
					l.SetFinal(curState, lattice.Weight{})
				}
			}
			h = tok.next
		}
	}
	return l, l.NumStates() > 0
}

// GetRawLatticePruned is GetRawLattice restricted to tokens reachable
// through links whose destination extra-cost is under beam, explored
// breadth-first from the start so only states actually on a kept path are
// ever created.
func (c *Core) GetRawLatticePruned(useFinal bool, beam float64) (*lattice.Lattice, bool) {
	if c.decodingFinalized && !useFinal {
		panic("decoder: cannot call GetRawLatticePruned with useFinal=false after FinalizeDecoding")
	}
	finalCosts := c.finalCosts
	if !c.decodingFinalized {
		if useFinal {
			finalCosts, _, _ = c.computeFinalCosts()
		} else {
			finalCosts = nil
		}
	}

	numFrames := c.NumFramesDecoded()
	assertf(numFrames > 0, "GetRawLatticePruned called with no frames decoded")
	for f := 0; f <= numFrames; f++ {
		if !c.frames[f].toks.Valid() {
			c.recordWarning(fmt.Sprintf("no tokens active on frame %d: not producing lattice", f))
			return nil, false
		}
	}

	l := lattice.New()
	tokMap := make(map[pool.Handle]int32)

	type queued struct {
		tok   pool.Handle
		frame int
	}
	var queue []queued

	// The initial state is the last token in frame 0's list, an
	// arbitrary-but-deterministic pick consistent with how the list is
	// built (head-inserted, so this is frame 0's very first-created
	// token: the InitDecoding start token).
	var startTok pool.Handle
	for h := c.frames[0].toks; h.Valid(); h = c.tokPool.Get(h).next {
		startTok = h
	}
	if startTok.Valid() {
		tokMap[startTok] = l.AddState()
		l.SetStart(tokMap[startTok])
		queue = append(queue, queued{startTok, 0})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curTok, curFrame := cur.tok, cur.frame
		curState := tokMap[curTok]
		tok := c.tokPool.Get(curTok)

		for lh := tok.links; lh.Valid(); {
			link := c.linkPool.Get(lh)
			dstTok := c.tokPool.Get(link.dstTok)
			if dstTok.extraCost < beam {
				nextFrame := curFrame
				if link.ilabel != epsilon {
					nextFrame++
				}
				nextState, ok := tokMap[link.dstTok]
				if !ok {
					nextState = l.AddState()
					tokMap[link.dstTok] = nextState
					queue = append(queue, queued{link.dstTok, nextFrame})
				}
				costOffset := 0.0
				if link.ilabel != epsilon {
					costOffset = c.costOffsets[curFrame]
				}
				l.AddArc(curState, lattice.Arc{
					ILabel:    link.ilabel,
					OLabel:    link.olabel,
					Weight:    lattice.Weight{GraphCost: link.graphCost, AcousticCost: link.acousticCost - costOffset},
					NextState: nextState,
				})
			}
			lh = link.next
		}

		if curFrame == numFrames {
			if useFinal && len(finalCosts) > 0 {
				if fc, ok := finalCosts[curTok]; ok {
					l.SetFinal(curState, lattice.Weight{GraphCost: fc})
				}
			} else {
				l.SetFinal(curState, lattice.Weight{})
			}
		}
	}
	return l, l.NumStates() != 0
}

// topSortTokens returns the tokens in head's list in topological order
// with respect to epsilon forward-links, as a slice that may contain
// invalid (zero) handles in unused slots — callers must skip those. It
// panics if the epsilon sub-graph among these tokens is not acyclic,
// which would mean the decoding graph itself has an epsilon cycle.
func (c *Core) topSortTokens(head pool.Handle) []pool.Handle {
	var toks []pool.Handle
	for h := head; h.Valid(); h = c.tokPool.Get(h).next {
		toks = append(toks, h)
	}
	n := len(toks)
	pos := make(map[pool.Handle]int, n)
	cur := 0
	for i, h := range toks {
		pos[h] = n - 1 - i
	}
	cur = n

	reprocess := make(map[pool.Handle]bool)
	visit := func(h pool.Handle) {
		p := pos[h]
		tok := c.tokPool.Get(h)
		for lh := tok.links; lh.Valid(); {
			link := c.linkPool.Get(lh)
			if link.ilabel == epsilon {
				if np, ok := pos[link.dstTok]; ok && np < p {
					pos[link.dstTok] = cur
					cur++
					reprocess[link.dstTok] = true
				}
			}
			lh = link.next
		}
	}
	for _, h := range toks {
		visit(h)
		delete(reprocess, h)
	}

	const maxPasses = 1_000_000
	passes := 0
	for len(reprocess) > 0 {
		passes++
		assertf(passes < maxPasses, "epsilon loops exist in the decoding graph (not allowed)")
		batch := make([]pool.Handle, 0, len(reprocess))
		for h := range reprocess {
			batch = append(batch, h)
		}
		reprocess = make(map[pool.Handle]bool)
		for _, h := range batch {
			visit(h)
		}
	}

	out := make([]pool.Handle, cur)
	for h, p := range pos {
		out[p] = h
	}
	return out
}
