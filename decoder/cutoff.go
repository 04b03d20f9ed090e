package decoder

import (
	"math"

	"github.com/ieee0824/lattice-decoder/internal/hashlist"
	"github.com/ieee0824/lattice-decoder/internal/pool"
)

// getCutoff computes the adaptive pruning cutoff for one frame's frontier:
// the plain beam cutoff from the best token's cost, tightened by
// max-active (never keep more than MaxActive tokens) and loosened by
// min-active (never keep fewer than MinActive, when that many exist). It
// also returns the adaptive beam actually used (for ProcessEmitting's
// next-frame cutoff estimate) and the best-cost element (a cheap way for
// ProcessEmitting to pre-scan the best token's arcs without a second walk
// over the same list).
func (c *Core) getCutoff(list *hashlist.Elem[stateKey, pool.Handle]) (cutoff, adaptiveBeam float64, bestElem *hashlist.Elem[stateKey, pool.Handle], count int) {
	bestWeight := math.Inf(1)

	if c.cfg.MaxActive == math.MaxInt32 && c.cfg.MinActive == 0 {
		for e := list; e != nil; e = e.Next() {
			count++
			w := c.tokPool.Get(e.Val).totalCost
			if w < bestWeight {
				bestWeight = w
				bestElem = e
			}
		}
		return bestWeight + c.cfg.Beam, c.cfg.Beam, bestElem, count
	}

	c.scratch = c.scratch[:0]
	for e := list; e != nil; e = e.Next() {
		count++
		w := c.tokPool.Get(e.Val).totalCost
		c.scratch = append(c.scratch, w)
		if w < bestWeight {
			bestWeight = w
			bestElem = e
		}
	}
	beamCutoff := bestWeight + c.cfg.Beam

	if len(c.scratch) > c.cfg.MaxActive {
		maxActiveCutoff := quickselect(c.scratch, c.cfg.MaxActive, len(c.scratch))
		if maxActiveCutoff < beamCutoff {
			return maxActiveCutoff, maxActiveCutoff - bestWeight + c.cfg.BeamDelta, bestElem, count
		}
	}

	if len(c.scratch) > c.cfg.MinActive {
		var minActiveCutoff float64
		if c.cfg.MinActive == 0 {
			minActiveCutoff = bestWeight
		} else {
			bound := len(c.scratch)
			if len(c.scratch) > c.cfg.MaxActive {
				bound = c.cfg.MaxActive
			}
			minActiveCutoff = quickselect(c.scratch, c.cfg.MinActive, bound)
		}
		if minActiveCutoff > beamCutoff {
			return minActiveCutoff, minActiveCutoff - bestWeight + c.cfg.BeamDelta, bestElem, count
		}
	}

	return beamCutoff, c.cfg.Beam, bestElem, count
}

// quickselect partitions s[:bound] in place (Hoare-style, median-of-three
// pivot) so that s[k] holds the k-th smallest value among s[:bound],
// mirroring the narrowed nth_element calls the core makes when min_active's
// search must stay within max_active's bound.
func quickselect(s []float64, k, bound int) float64 {
	lo, hi := 0, bound-1
	for lo < hi {
		p := partition(s, lo, hi)
		switch {
		case k < p:
			hi = p - 1
		case k > p:
			lo = p + 1
		default:
			return s[k]
		}
	}
	return s[k]
}

func partition(s []float64, lo, hi int) int {
	mid := (lo + hi) / 2
	pivot := s[mid]
	s[mid], s[hi] = s[hi], s[mid]
	store := lo
	for i := lo; i < hi; i++ {
		if s[i] < pivot {
			s[i], s[store] = s[store], s[i]
			store++
		}
	}
	s[store], s[hi] = s[hi], s[store]
	return store
}
