package lattice

import "math"

// ShortestPath returns the minimum-total-weight arc sequence from l's start
// state to whichever final state it reaches most cheaply, or nil if no
// final state is reachable. It relies on l's states being in topological
// order (true of every Lattice this package or the decoder core
// constructs), which lets a single forward pass stand in for Dijkstra even
// though arc weights may be negative (a GMM log-density can exceed zero).
func ShortestPath(l *Lattice) []Arc {
	n := l.NumStates()
	if n == 0 || l.start < 0 {
		return nil
	}

	dist := make([]float64, n)
	prevState := make([]int32, n)
	prevArc := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prevArc[i] = -1
	}
	dist[l.start] = 0

	for s := l.start; int(s) < n; s++ {
		if math.IsInf(dist[s], 1) {
			continue
		}
		for ai, a := range l.Arcs(s) {
			nd := dist[s] + a.Weight.Value()
			if nd < dist[a.NextState] {
				dist[a.NextState] = nd
				prevState[a.NextState] = s
				prevArc[a.NextState] = ai
			}
		}
	}

	best := int32(-1)
	bestCost := math.Inf(1)
	for s := int32(0); int(s) < n; s++ {
		if fw, ok := l.Final(s); ok {
			c := dist[s] + fw.Value()
			if c < bestCost {
				bestCost = c
				best = s
			}
		}
	}
	if best < 0 || math.IsInf(bestCost, 1) {
		return nil
	}

	var rev []Arc
	for s := best; s != l.start; {
		ai := prevArc[s]
		ps := prevState[s]
		rev = append(rev, l.Arcs(ps)[ai])
		s = ps
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
