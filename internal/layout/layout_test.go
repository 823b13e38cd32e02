package layout

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/models"
)

func node(id string) models.Node {
	return models.Node{ID: id, Data: models.NodeData{Label: "label " + id}}
}

func edge(src, dst string) models.Edge {
	return models.Edge{ID: src + "-" + dst, Source: src, Target: dst}
}

func tree() models.Graph {
	return models.Graph{
		Nodes: []models.Node{node("A"), node("B"), node("C")},
		Edges: []models.Edge{edge("A", "B"), edge("A", "C")},
	}
}

// pyramid has a long edge (S->K skips a rank) and a node with two parents.
func pyramid() models.Graph {
	return models.Graph{
		Nodes: []models.Node{
			node("S"), node("K1"), node("K2"), node("K3"),
			node("a"), node("b"), node("c"), node("d"), node("K"),
		},
		Edges: []models.Edge{
			edge("S", "K1"), edge("S", "K2"), edge("S", "K3"),
			edge("K1", "a"), edge("K1", "b"),
			edge("K2", "c"), edge("K3", "d"), edge("K3", "c"),
			edge("S", "K"),
			edge("a", "K"),
		},
	}
}

func positions(g models.Graph) map[string]models.Position {
	out := make(map[string]models.Position, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n.Position
	}
	return out
}

func TestLayout_TreeTopToBottom(t *testing.T) {
	out, err := New(Options{}).Layout(tree(), models.DirectionTB)
	require.NoError(t, err)

	pos := positions(out)
	assert.Equal(t, models.Position{X: 88, Y: 0}, pos["A"])
	assert.Equal(t, models.Position{X: 0, Y: 152}, pos["B"])
	assert.Equal(t, models.Position{X: 272, Y: 152}, pos["C"])
}

func TestLayout_TreeLeftToRight(t *testing.T) {
	out, err := New(Options{}).Layout(tree(), models.DirectionLR)
	require.NoError(t, err)

	pos := positions(out)
	assert.Equal(t, models.Position{X: 0, Y: 60}, pos["A"])
	assert.Equal(t, models.Position{X: 400, Y: 0}, pos["B"])
	assert.Equal(t, models.Position{X: 400, Y: 120}, pos["C"])
}

func TestLayout_Idempotent(t *testing.T) {
	e := New(Options{})
	for _, dir := range []models.Direction{models.DirectionTB, models.DirectionLR} {
		t.Run(string(dir), func(t *testing.T) {
			first, err := e.Layout(pyramid(), dir)
			require.NoError(t, err)
			second, err := e.Layout(first, dir)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestLayout_Deterministic(t *testing.T) {
	a, err := New(Options{}).Layout(pyramid(), models.DirectionTB)
	require.NoError(t, err)
	b, err := New(Options{}).Layout(pyramid(), models.DirectionTB)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLayout_PreservesOrderAndInput(t *testing.T) {
	in := pyramid()
	in.Nodes[0].Position = models.Position{X: -5, Y: -5}
	snapshot := in.Clone()

	out, err := New(Options{}).Layout(in, models.DirectionTB)
	require.NoError(t, err)

	assert.Equal(t, snapshot, in, "input must not be modified")
	require.Len(t, out.Nodes, len(in.Nodes))
	for i := range in.Nodes {
		assert.Equal(t, in.Nodes[i].ID, out.Nodes[i].ID)
		assert.Equal(t, in.Nodes[i].Data, out.Nodes[i].Data)
	}
	assert.Equal(t, in.Edges, out.Edges)
}

func TestLayout_Roles(t *testing.T) {
	g := tree()
	g.Nodes[0].Role = models.RoleIdea // stale
	g.Nodes[1].Role = models.RoleRoot // stale

	out, err := New(Options{}).Layout(g, models.DirectionTB)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRoot, out.Nodes[0].Role)
	assert.Equal(t, models.RoleIdea, out.Nodes[1].Role)
	assert.Equal(t, models.RoleIdea, out.Nodes[2].Role)
}

func TestLayout_EdgesPointDownstream(t *testing.T) {
	for _, dir := range []models.Direction{models.DirectionTB, models.DirectionLR} {
		out, err := New(Options{}).Layout(pyramid(), dir)
		require.NoError(t, err)
		pos := positions(out)
		for _, e := range out.Edges {
			src, dst := pos[e.Source], pos[e.Target]
			if dir == models.DirectionTB {
				assert.Greater(t, dst.Y, src.Y, "%s: edge %s", dir, e.ID)
			} else {
				assert.Greater(t, dst.X, src.X, "%s: edge %s", dir, e.ID)
			}
		}
	}
}

func TestLayout_NoOverlapWithinRank(t *testing.T) {
	e := New(Options{})
	out, err := e.Layout(pyramid(), models.DirectionTB)
	require.NoError(t, err)

	hasParent := map[string]bool{}
	for _, ed := range out.Edges {
		hasParent[ed.Target] = true
	}
	for i, a := range out.Nodes {
		for _, b := range out.Nodes[i+1:] {
			if a.Position.Y != b.Position.Y {
				continue
			}
			left, right := a, b
			if left.Position.X > right.Position.X {
				left, right = right, left
			}
			w := e.BoxSize(hasParent[left.ID]).Width
			assert.GreaterOrEqual(t, right.Position.X-left.Position.X, w+e.Options().NodeSep-0.01,
				"%s and %s overlap", left.ID, right.ID)
		}
	}
}

func TestLayout_Normalised(t *testing.T) {
	out, err := New(Options{}).Layout(pyramid(), models.DirectionTB)
	require.NoError(t, err)

	minX, minY := out.Nodes[0].Position.X, out.Nodes[0].Position.Y
	for _, n := range out.Nodes {
		minX = min(minX, n.Position.X)
		minY = min(minY, n.Position.Y)
	}
	assert.Equal(t, 0.0, minX)
	assert.Equal(t, 0.0, minY)
}

func TestLayout_MultipleRoots(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{node("R1"), node("R2"), node("x")},
		Edges: []models.Edge{edge("R1", "x"), edge("R2", "x")},
	}
	out, err := New(Options{}).Layout(g, models.DirectionTB)
	require.NoError(t, err)

	assert.Equal(t, models.RoleRoot, out.Nodes[0].Role)
	assert.Equal(t, models.RoleRoot, out.Nodes[1].Role)
	assert.Equal(t, out.Nodes[0].Position.Y, out.Nodes[1].Position.Y)
	assert.Greater(t, out.Nodes[2].Position.Y, out.Nodes[0].Position.Y)
}

func TestLayout_Cycle(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{node("A"), node("B"), node("C")},
		Edges: []models.Edge{edge("A", "B"), edge("B", "C"), edge("C", "B")},
	}
	_, err := New(Options{}).Layout(g, models.DirectionTB)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrCyclicGraph))
	assert.Equal(t, "B", apperr.OffendingID(err))
}

func TestLayout_SelfLoop(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{node("A")},
		Edges: []models.Edge{edge("A", "A")},
	}
	_, err := New(Options{}).Layout(g, models.DirectionLR)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrCyclicGraph))
}

func TestLayout_EmptyGraph(t *testing.T) {
	out, err := New(Options{}).Layout(models.Graph{}, models.DirectionTB)
	require.NoError(t, err)
	assert.Empty(t, out.Nodes)
	assert.Empty(t, out.Edges)
}

func TestLayout_InvalidInput(t *testing.T) {
	_, err := New(Options{}).Layout(tree(), models.Direction("RL"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	g := tree()
	g.Edges = append(g.Edges, edge("A", "ghost"))
	_, err = New(Options{}).Layout(g, models.DirectionTB)
	assert.True(t, errors.Is(err, apperr.ErrReferentialIntegrity))
}

func TestLayout_CustomSpacing(t *testing.T) {
	e := New(Options{RankSep: 10, NodeSep: 4})
	out, err := e.Layout(tree(), models.DirectionTB)
	require.NoError(t, err)

	pos := positions(out)
	assert.Equal(t, 72.0+10, pos["B"].Y)
	assert.Equal(t, 224.0+4, pos["C"].X-pos["B"].X)
}

func TestRank_PullsSourcesDown(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{node("S1"), node("S2"), node("Y"), node("X")},
		Edges: []models.Edge{edge("S1", "X"), edge("S2", "Y"), edge("Y", "X")},
	}
	ranks, err := New(Options{}).Rank(g)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S1": 1, "S2": 0, "Y": 1, "X": 2}, ranks)
}

func TestRank_LongestPath(t *testing.T) {
	ranks, err := New(Options{}).Rank(pyramid())
	require.NoError(t, err)
	assert.Equal(t, 0, ranks["S"])
	assert.Equal(t, 1, ranks["K1"])
	assert.Equal(t, 2, ranks["a"])
	assert.Equal(t, 3, ranks["K"])
}

func TestRoots(t *testing.T) {
	assert.Equal(t, []string{"S"}, Roots(pyramid()))
	assert.Nil(t, Roots(models.Graph{}))
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3}, 3},
		{[]float64{4, 0}, 2},
		{[]float64{0, 1, 5}, 1},
		{[]float64{0, 1, 2, 3}, 1.5},
		{[]float64{0, 1, 2, 9}, (1*7 + 2*1) / 8.0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.InDelta(t, tt.want, median(tt.in), 1e-9)
		})
	}
}

func TestIsotonic(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3}, isotonic([]float64{1, 2, 3}))
	assert.Equal(t, []float64{-136, -136}, isotonic([]float64{0, -272}))
	assert.Equal(t, []float64{1, 2, 2, 4}, isotonic([]float64{1, 3, 1, 4}))
}
