package layout

import (
	"strings"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/models"
)

// rankNodes assigns each node (by index) a rank using Kahn's algorithm and
// longest path from the sources. Sources feeding deeper nodes only are then
// moved down to sit one rank above their nearest successor.
func rankNodes(g models.Graph) ([]int, error) {
	n := len(g.Nodes)
	idx := g.NodeIndex()

	succ := make([][]int, n)
	indeg := make([]int, n)
	for _, e := range g.Edges {
		u, v := idx[e.Source], idx[e.Target]
		succ[u] = append(succ[u], v)
		indeg[v]++
	}

	sources := make([]bool, n)
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			sources[i] = true
			queue = append(queue, i)
		}
	}

	ranks := make([]int, n)
	done := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		done++
		for _, v := range succ[u] {
			if ranks[u]+1 > ranks[v] {
				ranks[v] = ranks[u] + 1
			}
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if done < n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				stuck = append(stuck, g.Nodes[i].ID)
			}
		}
		return nil, apperr.New(apperr.ErrCyclicGraph, stuck[0],
			"graph has no topological order; nodes on or behind a cycle: %s", strings.Join(stuck, ", "))
	}

	for i := 0; i < n; i++ {
		if !sources[i] || len(succ[i]) == 0 {
			continue
		}
		nearest := ranks[succ[i][0]]
		for _, v := range succ[i][1:] {
			if ranks[v] < nearest {
				nearest = ranks[v]
			}
		}
		ranks[i] = nearest - 1
	}
	return ranks, nil
}

func invalidDirection(dir models.Direction) error {
	return apperr.Validation("direction", "unsupported direction %q, want %q or %q",
		dir, models.DirectionTB, models.DirectionLR)
}
