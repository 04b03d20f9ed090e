package decoder

import (
	"fmt"
	"math"

	"github.com/ieee0824/lattice-decoder/internal/pool"
)

// approxEqual reports whether a and b differ by no more than delta,
// treating two infinities of the same sign as equal.
func approxEqual(a, b, delta float64) bool {
	if math.IsInf(a, 1) && math.IsInf(b, 1) {
		return true
	}
	return math.Abs(a-b) <= delta
}

// pruneForwardLinks recomputes extra-cost on frame t's tokens to a fixed
// point, deleting any forward link whose extra-cost exceeds the lattice
// beam. extraCostsChanged reports whether any token's extra-cost changed
// by more than delta (the caller's signal to also re-run frame t-1), and
// linksPruned reports whether any link was removed (the signal to mark
// frame t's tokens for PruneTokenList).
func (c *Core) pruneForwardLinks(t int, delta float64) (extraCostsChanged, linksPruned bool) {
	if !c.frames[t].toks.Valid() {
		c.warnOnce(&c.warnedEmptyFrontier, fmt.Sprintf("no tokens alive on frame %d [pruning]", t))
	}

	changed := true
	for changed {
		changed = false
		for h := c.frames[t].toks; h.Valid(); {
			tok := c.tokPool.Get(h)
			tokExtraCost := math.Inf(1)

			var prev pool.Handle
			link := tok.links
			for link.Valid() {
				l := c.linkPool.Get(link)
				dstTok := c.tokPool.Get(l.dstTok)
				linkExtraCost := dstTok.extraCost + ((tok.totalCost + l.acousticCost + l.graphCost) - dstTok.totalCost)
				assertf(!math.IsNaN(linkExtraCost), "NaN extra-cost (bug in token-pruning algorithm)")

				if linkExtraCost > c.cfg.LatticeBeam {
					next := l.next
					if prev.Valid() {
						c.linkPool.Get(prev).next = next
					} else {
						tok.links = next
					}
					c.linkPool.Free(link)
					link = next
					linksPruned = true
				} else {
					if linkExtraCost < 0 {
						if linkExtraCost < -0.01 {
							c.recordWarning(fmt.Sprintf("negative extra-cost %v (should be at least zero)", linkExtraCost))
						}
						linkExtraCost = 0
					}
					if linkExtraCost < tokExtraCost {
						tokExtraCost = linkExtraCost
					}
					prev = link
					link = l.next
				}
			}

			if !approxEqual(tokExtraCost, tok.extraCost, delta) {
				changed = true
			}
			tok.extraCost = tokExtraCost
			h = tok.next
		}
		if changed {
			extraCostsChanged = true
		}
	}
	return extraCostsChanged, linksPruned
}

// pruneForwardLinksFinal is pruneForwardLinks specialized for the last
// decoded frame, where a token's extra-cost must additionally account for
// whatever final cost (if any) the WFST assigns its state, not just its
// best surviving forward link.
func (c *Core) pruneForwardLinksFinal() {
	endTime := c.NumFramesDecoded()
	if !c.frames[endTime].toks.Valid() {
		c.recordWarning("no tokens alive at end of utterance")
	}

	finalCosts, finalRelativeCost, finalBestCost := c.computeFinalCosts()
	c.finalCosts = finalCosts
	c.finalRelativeCost = finalRelativeCost
	c.finalBestCost = finalBestCost
	c.decodingFinalized = true
	c.deleteElems(c.hash.Clear())

	const delta = 1.0e-5
	changed := true
	for changed {
		changed = false
		for h := c.frames[endTime].toks; h.Valid(); {
			tok := c.tokPool.Get(h)

			finalCost := 0.0
			if len(c.finalCosts) > 0 {
				fc, ok := c.finalCosts[h]
				if !ok {
					finalCost = math.Inf(1)
				} else {
					finalCost = fc
				}
			}
			tokExtraCost := tok.totalCost + finalCost - c.finalBestCost

			var prev pool.Handle
			link := tok.links
			for link.Valid() {
				l := c.linkPool.Get(link)
				dstTok := c.tokPool.Get(l.dstTok)
				linkExtraCost := dstTok.extraCost + ((tok.totalCost + l.acousticCost + l.graphCost) - dstTok.totalCost)
				assertf(!math.IsNaN(linkExtraCost), "NaN extra-cost (bug in token-pruning algorithm)")

				if linkExtraCost > c.cfg.LatticeBeam {
					next := l.next
					if prev.Valid() {
						c.linkPool.Get(prev).next = next
					} else {
						tok.links = next
					}
					c.linkPool.Free(link)
					link = next
				} else {
					if linkExtraCost < 0 {
						if linkExtraCost < -0.01 {
							c.recordWarning(fmt.Sprintf("negative extra-cost %v (should be at least zero)", linkExtraCost))
						}
						linkExtraCost = 0
					}
					if linkExtraCost < tokExtraCost {
						tokExtraCost = linkExtraCost
					}
					prev = link
					link = l.next
				}
			}

			if tokExtraCost > c.cfg.LatticeBeam {
				tokExtraCost = math.Inf(1)
			}
			if !approxEqual(tokExtraCost, tok.extraCost, delta) {
				changed = true
			}
			tok.extraCost = tokExtraCost
			h = tok.next
		}
	}
}

// pruneTokenList removes every token on frame t whose extra-cost is +Inf
// (unreachable from any final state within the lattice beam).
func (c *Core) pruneTokenList(t int) {
	if !c.frames[t].toks.Valid() {
		c.recordWarning(fmt.Sprintf("no tokens alive on frame %d [pruning]", t))
	}
	var prev pool.Handle
	h := c.frames[t].toks
	for h.Valid() {
		tok := c.tokPool.Get(h)
		next := tok.next
		if math.IsInf(tok.extraCost, 1) {
			if prev.Valid() {
				c.tokPool.Get(prev).next = next
			} else {
				c.frames[t].toks = next
			}
			c.deleteToken(h)
		} else {
			prev = h
		}
		h = next
	}
}

// pruneTokenNet runs one incremental backward prune over every frame
// flagged dirty since the last call, propagating the "extra-cost changed"
// signal backward and the "links were pruned" signal into a token-list
// prune on the following frame.
func (c *Core) pruneTokenNet(delta float64) {
	curTime := c.NumFramesDecoded()
	for t := curTime - 1; t >= 0; t-- {
		if c.frames[t].mustPruneForwardLinks {
			extraChanged, linksPruned := c.pruneForwardLinks(t, delta)
			if extraChanged && t > 0 {
				c.frames[t-1].mustPruneForwardLinks = true
			}
			if linksPruned {
				c.frames[t].mustPruneTokens = true
			}
			c.frames[t].mustPruneForwardLinks = false
		}
		if t != curTime-1 && c.frames[t+1].mustPruneTokens {
			c.pruneTokenList(t + 1)
			c.frames[t+1].mustPruneTokens = false
		}
	}
}

// computeFinalCosts scans the live frontier hash and returns, for every
// token whose WFST state has a finite final cost, that cost; plus the best
// total cost seen (bestCost), and the relative cost of being forced to end
// now (bestCostWithFinal - bestCost, +Inf if nothing is final).
func (c *Core) computeFinalCosts() (finalCosts map[pool.Handle]float64, finalRelativeCost, finalBestCost float64) {
	finalCosts = make(map[pool.Handle]float64)
	bestCost := math.Inf(1)
	bestCostWithFinal := math.Inf(1)

	for e := c.hash.GetList(); e != nil; e = e.Next() {
		h := e.Val
		tok := c.tokPool.Get(h)
		fc := c.fst.Final(e.Key.la)
		cost := tok.totalCost
		if cost < bestCost {
			bestCost = cost
		}
		if !math.IsInf(fc, 1) {
			finalCosts[h] = fc
			if costWithFinal := cost + fc; costWithFinal < bestCostWithFinal {
				bestCostWithFinal = costWithFinal
			}
		}
	}

	if math.IsInf(bestCost, 1) && math.IsInf(bestCostWithFinal, 1) {
		finalRelativeCost = math.Inf(1)
	} else {
		finalRelativeCost = bestCostWithFinal - bestCost
	}
	if !math.IsInf(bestCostWithFinal, 1) {
		finalBestCost = bestCostWithFinal
	} else {
		finalBestCost = bestCost
	}
	return finalCosts, finalRelativeCost, finalBestCost
}
