package layout

import (
	"sort"

	"github.com/starford/minto/internal/models"
)

// lnode is a node of the layered graph. The first len(g.Nodes) entries mirror
// the input nodes by index; the rest are virtual nodes on long edges.
type lnode struct {
	virtual bool
	rank    int
	pos     int
	box     Size
	up      []int
	down    []int
}

type layers struct {
	nodes []lnode
	ranks [][]int
}

func (e *Engine) buildLayers(g models.Graph, ranks []int) *layers {
	idx := g.NodeIndex()
	hasParent := make([]bool, len(g.Nodes))
	for _, ed := range g.Edges {
		hasParent[idx[ed.Target]] = true
	}

	lg := &layers{nodes: make([]lnode, len(g.Nodes))}
	maxRank := 0
	for i := range g.Nodes {
		lg.nodes[i] = lnode{rank: ranks[i], box: e.BoxSize(hasParent[i])}
		if ranks[i] > maxRank {
			maxRank = ranks[i]
		}
	}

	connect := func(a, b int) {
		lg.nodes[a].down = append(lg.nodes[a].down, b)
		lg.nodes[b].up = append(lg.nodes[b].up, a)
	}
	for _, ed := range g.Edges {
		u, v := idx[ed.Source], idx[ed.Target]
		prev := u
		for r := ranks[u] + 1; r < ranks[v]; r++ {
			lg.nodes = append(lg.nodes, lnode{virtual: true, rank: r})
			d := len(lg.nodes) - 1
			connect(prev, d)
			prev = d
		}
		connect(prev, v)
	}

	lg.ranks = make([][]int, maxRank+1)
	lg.initialOrder(len(g.Nodes))
	return lg
}

// initialOrder fills ranks depth-first from the sources in node order so that
// siblings start out adjacent.
func (lg *layers) initialOrder(real int) {
	visited := make([]bool, len(lg.nodes))
	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		r := lg.nodes[i].rank
		lg.ranks[r] = append(lg.ranks[r], i)
		for _, c := range lg.nodes[i].down {
			visit(c)
		}
	}
	for i := 0; i < real; i++ {
		if len(lg.nodes[i].up) == 0 {
			visit(i)
		}
	}
	for i := range lg.nodes {
		visit(i)
	}
	lg.syncPositions()
}

func (lg *layers) syncPositions() {
	for _, layer := range lg.ranks {
		for p, v := range layer {
			lg.nodes[v].pos = p
		}
	}
}

// reduceCrossings runs alternating median sweeps and keeps the order with
// the fewest crossings. Ties keep the earlier order.
func (lg *layers) reduceCrossings(iterations int) {
	best := cloneRanks(lg.ranks)
	bestCross := lg.crossings()

	for it := 0; it < iterations && bestCross > 0; it++ {
		if it%2 == 0 {
			for r := 1; r < len(lg.ranks); r++ {
				lg.sortByMedian(r, true)
			}
		} else {
			for r := len(lg.ranks) - 2; r >= 0; r-- {
				lg.sortByMedian(r, false)
			}
		}
		if c := lg.crossings(); c < bestCross {
			bestCross = c
			best = cloneRanks(lg.ranks)
		}
	}

	lg.ranks = best
	lg.syncPositions()
}

// sortByMedian reorders rank r by the median position of each node's
// neighbours in the adjacent rank. Nodes without neighbours keep their slot.
func (lg *layers) sortByMedian(r int, fromAbove bool) {
	layer := lg.ranks[r]

	type item struct {
		node  int
		med   float64
		fixed bool
		slot  int
	}
	items := make([]item, len(layer))
	var movable []item
	for i, v := range layer {
		nb := lg.nodes[v].down
		if fromAbove {
			nb = lg.nodes[v].up
		}
		it := item{node: v, slot: i}
		if len(nb) == 0 {
			it.fixed = true
		} else {
			ps := make([]float64, len(nb))
			for k, u := range nb {
				ps[k] = float64(lg.nodes[u].pos)
			}
			it.med = median(ps)
			movable = append(movable, it)
		}
		items[i] = it
	}

	sort.SliceStable(movable, func(a, b int) bool {
		if movable[a].med != movable[b].med {
			return movable[a].med < movable[b].med
		}
		return movable[a].slot < movable[b].slot
	})

	out := make([]int, len(layer))
	k := 0
	for i, it := range items {
		if it.fixed {
			out[i] = it.node
			continue
		}
		out[i] = movable[k].node
		k++
	}
	lg.ranks[r] = out
	for p, v := range out {
		lg.nodes[v].pos = p
	}
}

// median returns the weighted median used by dot for even counts.
func median(ps []float64) float64 {
	sort.Float64s(ps)
	m := len(ps)
	mid := m / 2
	switch {
	case m%2 == 1:
		return ps[mid]
	case m == 2:
		return (ps[0] + ps[1]) / 2
	}
	left := ps[mid-1] - ps[0]
	right := ps[m-1] - ps[mid]
	if left+right == 0 {
		return (ps[mid-1] + ps[mid]) / 2
	}
	return (ps[mid-1]*right + ps[mid]*left) / (left + right)
}

// crossings counts edge crossings between every pair of adjacent ranks.
func (lg *layers) crossings() int {
	total := 0
	type seg struct{ a, b int }
	for r := 0; r+1 < len(lg.ranks); r++ {
		var segs []seg
		for _, u := range lg.ranks[r] {
			for _, v := range lg.nodes[u].down {
				segs = append(segs, seg{lg.nodes[u].pos, lg.nodes[v].pos})
			}
		}
		for i := 0; i < len(segs); i++ {
			for j := i + 1; j < len(segs); j++ {
				s, t := segs[i], segs[j]
				if (s.a < t.a && s.b > t.b) || (s.a > t.a && s.b < t.b) {
					total++
				}
			}
		}
	}
	return total
}

func cloneRanks(ranks [][]int) [][]int {
	out := make([][]int, len(ranks))
	for i, r := range ranks {
		out[i] = append([]int(nil), r...)
	}
	return out
}
