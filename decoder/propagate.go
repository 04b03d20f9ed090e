package decoder

import (
	"fmt"
	"math"
)

// processEmitting expands every token surviving the previous frame's
// non-emitting closure across the graph's emitting arcs, scoring each with
// scorer, and returns the adaptive-beam cutoff to hand to the following
// processNonemitting call on the new frontier.
func (c *Core) processEmitting(scorer Scorer) (float64, error) {
	frame := c.NumFramesDecoded()
	c.frames = append(c.frames, frameSlot{})
	frontier := int32(len(c.frames) - 1)

	prevList := c.hash.Clear()
	cutoff, adaptiveBeam, bestElem, count := c.getCutoff(prevList)
	c.possiblyResizeHash(count)

	nextCutoff := math.Inf(1)
	costOffset := 0.0

	if bestElem != nil {
		key := bestElem.Key
		tok := c.tokPool.Get(bestElem.Val)
		costOffset = -tok.totalCost

		arcBase, numArcs := c.fst.State(key.la)
		for i := int32(0); i < numArcs; i++ {
			arc := c.fst.Arc(arcBase + i)
			if arc.ILabel == epsilon {
				continue
			}
			graphCost, _, _, ok := c.lmStep(arc, key.lm)
			if !ok {
				return 0, &GraphError{Op: "ProcessEmitting", Err: ErrMissingLmArc}
			}
			acCost := costOffset - scorer.LogLikelihood(frame, arc.ILabel)
			w := tok.totalCost + acCost + graphCost
			if w+adaptiveBeam < nextCutoff {
				nextCutoff = w + adaptiveBeam
			}
		}
	}

	for int32(len(c.costOffsets)) <= int32(frame) {
		c.costOffsets = append(c.costOffsets, 0)
	}
	c.costOffsets[frame] = costOffset

	for e := prevList; e != nil; {
		key := e.Key
		h := e.Val
		tok := c.tokPool.Get(h)
		if tok.totalCost <= cutoff {
			arcBase, numArcs := c.fst.State(key.la)
			for i := int32(0); i < numArcs; i++ {
				arc := c.fst.Arc(arcBase + i)
				if arc.ILabel == epsilon {
					continue
				}
				graphCost, olabel, nextLmState, ok := c.lmStep(arc, key.lm)
				if !ok {
					return 0, &GraphError{Op: "ProcessEmitting", Err: ErrMissingLmArc}
				}
				acCost := costOffset - scorer.LogLikelihood(frame, arc.ILabel)
				total := tok.totalCost + acCost + graphCost
				if total > nextCutoff {
					continue
				}
				if total+adaptiveBeam < nextCutoff {
					nextCutoff = total + adaptiveBeam
				}
				dstKey := stateKey{la: arc.Dest, lm: nextLmState}
				dst, _ := c.findOrAddToken(dstKey, frontier, total, h)
				tok.links = c.newLink(dst, arc.ILabel, olabel, graphCost, acCost, tok.links)
			}
		}
		next := e.Next()
		c.hash.Delete(e)
		e = next
	}
	return nextCutoff, nil
}

// processNonemitting closes the current frontier under epsilon arcs,
// iterating to a fixed point: any token whose cost improves is
// re-examined for further epsilon expansion. cutoff is the beam computed
// by the preceding processEmitting (or Beam, at InitDecoding).
func (c *Core) processNonemitting(cutoff float64) error {
	frontier := int32(len(c.frames)) - 1

	c.queue = c.queue[:0]
	for e := c.hash.GetList(); e != nil; e = e.Next() {
		c.queue = append(c.queue, e.Key)
	}
	if len(c.queue) == 0 {
		c.warnOnce(&c.warnedEmptyFrontier, fmt.Sprintf("no surviving tokens on frame %d", frontier))
	}

	const maxIterations = 10_000_000 // generous; only an epsilon cycle in the graph can exhaust this
	iterations := 0

	for len(c.queue) > 0 {
		iterations++
		if iterations > maxIterations {
			return &GraphError{Op: "ProcessNonemitting", Err: ErrEpsilonCycle}
		}

		key := c.queue[len(c.queue)-1]
		c.queue = c.queue[:len(c.queue)-1]

		e := c.hash.Find(key)
		assertf(e != nil, "token for state key vanished from the frontier hash mid-closure")
		h := e.Val
		tok := c.tokPool.Get(h)
		if tok.totalCost > cutoff {
			continue
		}
		c.deleteLinksFromToken(tok)

		arcBase, numArcs := c.fst.State(key.la)
		for i := int32(0); i < numArcs; i++ {
			arc := c.fst.Arc(arcBase + i)
			if arc.ILabel != epsilon {
				continue
			}
			graphCost, olabel, nextLmState, ok := c.lmStep(arc, key.lm)
			if !ok {
				return &GraphError{Op: "ProcessNonemitting", Err: ErrMissingLmArc}
			}
			total := tok.totalCost + graphCost
			if total >= cutoff {
				continue
			}
			dstKey := stateKey{la: arc.Dest, lm: nextLmState}
			dst, changed := c.findOrAddToken(dstKey, frontier, total, h)
			tok.links = c.newLink(dst, epsilon, olabel, graphCost, 0, tok.links)
			if changed {
				c.queue = append(c.queue, dstKey)
			}
		}
	}
	return nil
}
