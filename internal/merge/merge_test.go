package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/models"
)

func n(id string) models.Node {
	return models.Node{ID: id, Data: models.NodeData{Label: id}}
}

func e(id, src, dst string) models.Edge {
	return models.Edge{ID: id, Source: src, Target: dst}
}

func byID(g models.Graph, id string) models.Node {
	node, _ := g.Node(id)
	return node
}

func TestExpand_Completeness(t *testing.T) {
	base := models.Graph{Nodes: []models.Node{n("A")}, Edges: []models.Edge{}}
	addition := models.Graph{
		Nodes: []models.Node{n("B"), n("C")},
		Edges: []models.Edge{e("e1", "A", "B"), e("e2", "A", "C")},
	}

	out, err := Expand(base, "A", addition, WithDirection(models.DirectionTB))
	require.NoError(t, err)
	require.Len(t, out.Nodes, 3)
	require.Len(t, out.Edges, 2)

	a, b, c := byID(out, "A"), byID(out, "B"), byID(out, "C")
	assert.Equal(t, models.RoleRoot, a.Role)
	assert.Equal(t, models.RoleIdea, b.Role)
	assert.Equal(t, models.RoleIdea, c.Role)
	assert.Greater(t, b.Position.Y, a.Position.Y)
	assert.Greater(t, c.Position.Y, a.Position.Y)

	assert.Equal(t, []string{"A", "B", "C"}, []string{out.Nodes[0].ID, out.Nodes[1].ID, out.Nodes[2].ID})
	assert.Empty(t, Detached(out, "A", len(base.Nodes)))
}

func TestExpand_DuplicateNodeLeavesBaseUnchanged(t *testing.T) {
	base := models.Graph{
		Nodes: []models.Node{n("root"), n("n1")},
		Edges: []models.Edge{e("e0", "root", "n1")},
	}
	snapshot := base.Clone()
	addition := models.Graph{
		Nodes: []models.Node{n("n1")},
		Edges: []models.Edge{},
	}

	out, err := Expand(base, "root", addition)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDuplicateID))
	assert.Equal(t, "n1", apperr.OffendingID(err))
	assert.Empty(t, out.Nodes)
	assert.Equal(t, snapshot, base)
}

func TestExpand_DuplicateEdge(t *testing.T) {
	base := models.Graph{
		Nodes: []models.Node{n("root"), n("a")},
		Edges: []models.Edge{e("e1", "root", "a")},
	}
	addition := models.Graph{
		Nodes: []models.Node{n("b")},
		Edges: []models.Edge{e("e1", "a", "b")},
	}
	_, err := Expand(base, "a", addition)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDuplicateID))
	assert.Equal(t, "e1", apperr.OffendingID(err))
}

func TestExpand_UnknownAnchor(t *testing.T) {
	base := models.Graph{Nodes: []models.Node{n("A")}}
	_, err := Expand(base, "Z", models.Graph{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnknownAnchor))
	assert.Equal(t, "Z", apperr.OffendingID(err))
}

func TestExpand_InvalidAddition(t *testing.T) {
	base := models.Graph{Nodes: []models.Node{n("A")}}
	addition := models.Graph{
		Nodes: []models.Node{n("B")},
		Edges: []models.Edge{e("e1", "A", "missing")},
	}
	_, err := Expand(base, "A", addition)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrReferentialIntegrity))
	assert.Equal(t, "e1", apperr.OffendingID(err))
}

func TestExpand_CycleThroughBase(t *testing.T) {
	base := models.Graph{
		Nodes: []models.Node{n("A"), n("B")},
		Edges: []models.Edge{e("e1", "A", "B")},
	}
	addition := models.Graph{
		Nodes: []models.Node{n("C")},
		Edges: []models.Edge{e("e2", "B", "C"), e("e3", "C", "A")},
	}
	_, err := Expand(base, "B", addition)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrCyclicGraph))
}

func TestExpand_IDRemap(t *testing.T) {
	base := models.Graph{
		Nodes: []models.Node{n("root"), n("n1"), n("n1-2")},
		Edges: []models.Edge{e("e1", "root", "n1"), e("e2", "root", "n1-2")},
	}
	addition := models.Graph{
		Nodes: []models.Node{n("n1"), n("x")},
		Edges: []models.Edge{e("e1", "n1-2", "n1"), e("e9", "n1", "x")},
	}

	out, err := Expand(base, "n1-2", addition, WithIDRemap())
	require.NoError(t, err)
	require.Len(t, out.Nodes, 5)
	assert.Equal(t, "n1-3", out.Nodes[3].ID)
	assert.Equal(t, "x", out.Nodes[4].ID)

	require.Len(t, out.Edges, 4)
	assert.Equal(t, e("e1-2", "n1-2", "n1-3"), out.Edges[2])
	assert.Equal(t, e("e9", "n1-3", "x"), out.Edges[3])
	assert.Empty(t, Detached(out, "n1-2", len(base.Nodes)))
}

func TestExpand_LeftToRight(t *testing.T) {
	base := models.Graph{Nodes: []models.Node{n("A")}}
	addition := models.Graph{
		Nodes: []models.Node{n("B")},
		Edges: []models.Edge{e("e1", "A", "B")},
	}
	out, err := Expand(base, "A", addition,
		WithEngine(layout.New(layout.Options{RankSep: 10})),
		WithDirection(models.DirectionLR))
	require.NoError(t, err)
	assert.Equal(t, 320.0+10, byID(out, "B").Position.X)
}

func TestExpand_MatchesFullLayout(t *testing.T) {
	base := models.Graph{
		Nodes: []models.Node{n("S"), n("K1"), n("K2")},
		Edges: []models.Edge{e("a", "S", "K1"), e("b", "S", "K2")},
	}
	addition := models.Graph{
		Nodes: []models.Node{n("x"), n("y")},
		Edges: []models.Edge{e("c", "K1", "x"), e("d", "K1", "y")},
	}
	out, err := Expand(base, "K1", addition)
	require.NoError(t, err)

	full := models.Graph{
		Nodes: append(base.Clone().Nodes, addition.Nodes...),
		Edges: append(base.Clone().Edges, addition.Edges...),
	}
	want, err := layout.New(layout.Options{}).Layout(full, models.DirectionTB)
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestDetached(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{n("A"), n("B"), n("C")},
		Edges: []models.Edge{e("e1", "A", "B")},
	}
	assert.Equal(t, []string{"C"}, Detached(g, "A", 1))
	assert.Nil(t, Detached(g, "A", 7))
	assert.Nil(t, Reachable(g, "nope"))
	assert.Equal(t, map[string]bool{"A": true, "B": true}, Reachable(g, "A"))
}
