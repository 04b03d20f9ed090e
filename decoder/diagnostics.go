package decoder

import (
	"fmt"
	"math"

	"github.com/ieee0824/lattice-decoder/internal/pool"
	"github.com/ieee0824/lattice-decoder/lattice"
)

// TestGetBestPath cross-checks GetBestPath against the shortest path
// through GetRawLattice: both must land on the same total cost, to within
// floating-point slack. It returns an error describing the mismatch
// instead of panicking, since a caller uses this as a self-check in tests
// or startup diagnostics, not as a programmer-contract assertion.
func (c *Core) TestGetBestPath(useFinal bool) error {
	best, ok := c.GetBestPath(useFinal)
	if !ok {
		return fmt.Errorf("decoder: TestGetBestPath: GetBestPath found no token on the last frame")
	}
	bestCost := pathCost(best)

	raw, ok := c.GetRawLattice(useFinal)
	if !ok {
		return fmt.Errorf("decoder: TestGetBestPath: GetRawLattice found no token on some frame")
	}
	shortest := lattice.ShortestPath(raw)
	shortestCost := 0.0
	for _, a := range shortest {
		shortestCost += a.Weight.Value()
	}

	const tol = 1e-4
	if math.Abs(bestCost-shortestCost) > tol {
		return fmt.Errorf("decoder: TestGetBestPath: best path cost %v != raw-lattice shortest path cost %v", bestCost, shortestCost)
	}
	return nil
}

// TestPruneTokenNetIdempotent cross-checks that calling pruneTokenNet a
// second time with the same delta and no intervening propagation changes
// neither the live token count nor any surviving token's total/extra cost.
// Like TestGetBestPath, this is a diagnostic self-check for tests, not a
// programmer-contract assertion.
func (c *Core) TestPruneTokenNetIdempotent(delta float64) error {
	before := c.snapshotTokenCosts()
	c.pruneTokenNet(delta)
	after := c.snapshotTokenCosts()

	if len(before) != len(after) {
		return fmt.Errorf("decoder: TestPruneTokenNetIdempotent: token count changed from %d to %d on a repeat prune", len(before), len(after))
	}
	for h, cost := range before {
		ac, ok := after[h]
		if !ok {
			return fmt.Errorf("decoder: TestPruneTokenNetIdempotent: token %v disappeared on a repeat prune", h)
		}
		if cost != ac {
			return fmt.Errorf("decoder: TestPruneTokenNetIdempotent: token %v cost changed from %+v to %+v on a repeat prune", h, cost, ac)
		}
	}
	return nil
}

type tokenCostSnapshot struct {
	totalCost, extraCost float64
}

func (c *Core) snapshotTokenCosts() map[pool.Handle]tokenCostSnapshot {
	snap := make(map[pool.Handle]tokenCostSnapshot, c.numToks)
	for _, fr := range c.frames {
		for h := fr.toks; h.Valid(); {
			tok := c.tokPool.Get(h)
			snap[h] = tokenCostSnapshot{totalCost: tok.totalCost, extraCost: tok.extraCost}
			h = tok.next
		}
	}
	return snap
}

// TestForwardLinksRespectTriangleInequality walks every ForwardLink
// currently in the token net and checks that its destination token's total
// cost never exceeds the source token's total cost plus the link's graph
// and acoustic cost (within floating-point slack). This must hold after
// any propagation step, since a link is only ever created alongside a
// total-cost relaxation that is at least this good.
func (c *Core) TestForwardLinksRespectTriangleInequality() error {
	const tol = 1e-6
	for f, fr := range c.frames {
		for h := fr.toks; h.Valid(); {
			tok := c.tokPool.Get(h)
			for lh := tok.links; lh.Valid(); {
				link := c.linkPool.Get(lh)
				dst := c.tokPool.Get(link.dstTok)
				bound := tok.totalCost + link.graphCost + link.acousticCost
				if dst.totalCost > bound+tol {
					return fmt.Errorf("decoder: TestForwardLinksRespectTriangleInequality: frame %d: dst total_cost %v > src %v + graph %v + acoustic %v", f, dst.totalCost, tok.totalCost, link.graphCost, link.acousticCost)
				}
				lh = link.next
			}
			h = tok.next
		}
	}
	return nil
}

// TestForwardLinkExtraCostsWithinBeam checks that every surviving
// ForwardLink's extra-cost (recomputed the same way pruneForwardLinks
// does) is within LatticeBeam. Call it after FinalizeDecoding, or after a
// pruneForwardLinks fixed point is otherwise known to have run, since
// links created since the last prune may transiently exceed the beam.
func (c *Core) TestForwardLinkExtraCostsWithinBeam() error {
	const tol = 1e-6
	for f, fr := range c.frames {
		for h := fr.toks; h.Valid(); {
			tok := c.tokPool.Get(h)
			for lh := tok.links; lh.Valid(); {
				link := c.linkPool.Get(lh)
				dst := c.tokPool.Get(link.dstTok)
				linkExtraCost := dst.extraCost + ((tok.totalCost + link.acousticCost + link.graphCost) - dst.totalCost)
				if linkExtraCost > c.cfg.LatticeBeam+tol {
					return fmt.Errorf("decoder: TestForwardLinkExtraCostsWithinBeam: frame %d: link extra-cost %v exceeds lattice beam %v", f, linkExtraCost, c.cfg.LatticeBeam)
				}
				lh = link.next
			}
			h = tok.next
		}
	}
	return nil
}

func pathCost(l *lattice.Lattice) float64 {
	total := 0.0
	for s := int32(0); int(s) < l.NumStates(); s++ {
		for _, a := range l.Arcs(s) {
			total += a.Weight.Value()
		}
		if fw, ok := l.Final(s); ok {
			total += fw.Value()
		}
	}
	return total
}
