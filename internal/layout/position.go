package layout

import (
	"github.com/starford/minto/internal/models"
)

// place assigns box centres to the real nodes. The cross axis runs along a
// rank (x for TB, y for LR); the rank axis runs across ranks.
func (lg *layers) place(opts Options, dir models.Direction) []models.Position {
	cross := func(v int) float64 {
		if dir == models.DirectionLR {
			return lg.nodes[v].box.Height
		}
		return lg.nodes[v].box.Width
	}
	along := func(v int) float64 {
		if dir == models.DirectionLR {
			return lg.nodes[v].box.Width
		}
		return lg.nodes[v].box.Height
	}
	sep := func(a, b int) float64 {
		return (cross(a)+cross(b))/2 + opts.NodeSep
	}

	x := make([]float64, len(lg.nodes))
	for _, layer := range lg.ranks {
		for i, v := range layer {
			if i > 0 {
				x[v] = x[layer[i-1]] + sep(layer[i-1], v)
			}
		}
	}

	for it := 0; it < opts.AlignIterations; it++ {
		if it%2 == 0 {
			for r := 1; r < len(lg.ranks); r++ {
				lg.align(r, x, sep, true)
			}
		} else {
			for r := len(lg.ranks) - 2; r >= 0; r-- {
				lg.align(r, x, sep, false)
			}
		}
	}

	// Virtual nodes are not rendered and do not count towards the origin.
	minEdge := 0.0
	for v := range lg.nodes {
		if lg.nodes[v].virtual {
			break
		}
		if e := x[v] - cross(v)/2; v == 0 || e < minEdge {
			minEdge = e
		}
	}

	centre := make([]float64, len(lg.ranks))
	offset := 0.0
	for r, layer := range lg.ranks {
		thick := 0.0
		for _, v := range layer {
			if t := along(v); t > thick {
				thick = t
			}
		}
		centre[r] = offset + thick/2
		offset += thick + opts.RankSep
	}

	out := make([]models.Position, 0, len(lg.nodes))
	for v := range lg.nodes {
		if lg.nodes[v].virtual {
			break
		}
		c, r := x[v]-minEdge, centre[lg.nodes[v].rank]
		if dir == models.DirectionLR {
			out = append(out, models.Position{X: r, Y: c})
		} else {
			out = append(out, models.Position{X: c, Y: r})
		}
	}
	return out
}

// align moves every node of rank r towards the mean cross position of its
// neighbours in the adjacent rank, keeping the rank order and minimum
// separations. The least-squares solution under those constraints is an
// isotonic regression on the separation-shifted targets.
func (lg *layers) align(r int, x []float64, sep func(a, b int) float64, fromAbove bool) {
	layer := lg.ranks[r]
	if len(layer) == 0 {
		return
	}

	shift := make([]float64, len(layer))
	want := make([]float64, len(layer))
	for i, v := range layer {
		if i > 0 {
			shift[i] = shift[i-1] + sep(layer[i-1], v)
		}
		nb := lg.nodes[v].down
		if fromAbove {
			nb = lg.nodes[v].up
		}
		target := x[v]
		if len(nb) > 0 {
			sum := 0.0
			for _, u := range nb {
				sum += x[u]
			}
			target = sum / float64(len(nb))
		}
		want[i] = target - shift[i]
	}

	fit := isotonic(want)
	for i, v := range layer {
		x[v] = fit[i] + shift[i]
	}
}

// isotonic returns the non-decreasing sequence closest to vals in the least
// squares sense (pool adjacent violators).
func isotonic(vals []float64) []float64 {
	type block struct {
		sum float64
		n   int
	}
	blocks := make([]block, 0, len(vals))
	for _, v := range vals {
		blocks = append(blocks, block{sum: v, n: 1})
		for len(blocks) > 1 {
			a, b := blocks[len(blocks)-2], blocks[len(blocks)-1]
			if a.sum*float64(b.n) <= b.sum*float64(a.n) {
				break
			}
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1] = block{sum: a.sum + b.sum, n: a.n + b.n}
		}
	}
	out := make([]float64, 0, len(vals))
	for _, b := range blocks {
		m := b.sum / float64(b.n)
		for k := 0; k < b.n; k++ {
			out = append(out, m)
		}
	}
	return out
}
