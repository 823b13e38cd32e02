package diagramservice

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/fixture"
	"github.com/starford/minto/internal/generation"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/testutil"
)

const treePayload = `{
	"reasoningSteps": ["grouped", "summarised"],
	"nodes": [
		{"id": "S", "data": {"label": "S"}},
		{"id": "A", "data": {"label": "A"}},
		{"id": "B", "data": {"label": "B"}}
	],
	"edges": [
		{"id": "e1", "source": "S", "target": "A"},
		{"id": "e2", "source": "S", "target": "B"}
	]
}`

func childPayload(label string, _ models.Graph) string {
	return fmt.Sprintf(`{"reasoningSteps":["more"],"nodes":[{"id":"%[1]s-1","data":{"label":"%[1]s one"}}],"edges":[{"id":"e-%[1]s-1","source":"%[1]s","target":"%[1]s-1"}]}`, label)
}

type env struct {
	svc    *Service
	gen    *testutil.Generator
	events *testutil.Recorder
}

func setup(t *testing.T) env {
	t.Helper()
	gen := &testutil.Generator{SynthesisPayload: treePayload, ExpandPayload: childPayload}
	rec := &testutil.Recorder{}
	svc := New(testutil.TestHistory(t), gen, WithPublisher(rec))
	t.Cleanup(svc.Close)
	return env{svc: svc, gen: gen, events: rec}
}

func TestSynthesize_Example(t *testing.T) {
	f := setup(t)
	want, err := fixture.Example()
	require.NoError(t, err)

	for _, in := range []string{"  example ", "Example"} {
		res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: in, Direction: models.DirectionLR})
		require.NoError(t, err)
		assert.Equal(t, fixture.Title, res.Title)
		assert.Equal(t, want.ReasoningSteps, res.ReasoningSteps)
		assert.Equal(t, want.Nodes, res.Nodes)
		assert.Equal(t, want.Edges, res.Edges)
	}

	synth, _ := f.gen.Calls()
	assert.Zero(t, synth)
	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSynthesize_ExamplesIsNotReserved(t *testing.T) {
	f := setup(t)
	res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "examples"})
	require.NoError(t, err)

	synth, _ := f.gen.Calls()
	assert.Equal(t, 1, synth)
	assert.Equal(t, "examples", res.Title)
	assert.Equal(t, "examples", f.gen.Prompts[0].Title)
}

func TestSynthesize_LaysOutAndRecords(t *testing.T) {
	f := setup(t)
	res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "  Deep Work  "})
	require.NoError(t, err)

	assert.Equal(t, "Deep Work", res.Title)
	assert.Equal(t, "Deep Work", f.gen.Prompts[0].Title)
	assert.Equal(t, []string{"grouped", "summarised"}, res.ReasoningSteps)
	require.Len(t, res.Nodes, 3)
	assert.Equal(t, models.RoleRoot, res.Nodes[0].Role)
	assert.Equal(t, models.RoleIdea, res.Nodes[1].Role)
	assert.Greater(t, res.Nodes[1].Position.Y, res.Nodes[0].Position.Y)

	stored, err := f.svc.Get(context.Background(), res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, res.Nodes, stored.Nodes)
	assert.Equal(t, []string{"diagram.created:" + res.ID}, f.events.Events())
}

func TestSynthesize_MissingInputSkipsGeneration(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "   "})
	assert.True(t, errors.Is(err, apperr.ErrMissingInput))

	_, err = f.svc.Synthesize(context.Background(), SynthesizeInput{Document: &generation.Document{}})
	assert.True(t, errors.Is(err, apperr.ErrMissingInput))

	_, err = f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "x", Direction: "diagonal"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	synth, _ := f.gen.Calls()
	assert.Zero(t, synth)
}

func TestSynthesize_DocumentTitle(t *testing.T) {
	f := setup(t)
	res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{
		Document: &generation.Document{Data: []byte("text"), Filename: "reports/Annual Review.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Annual Review", res.Title)
	require.NotNil(t, f.gen.Prompts[0].Document)
}

func TestSynthesize_InvalidGeneratedPayload(t *testing.T) {
	f := setup(t)
	f.gen.SynthesisPayload = `{"reasoningSteps":[],"nodes":[{"id":"a","data":{"label":"A"}}],"edges":[{"id":"e1","source":"a","target":"ghost"}]}`

	_, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrGeneration))
	assert.True(t, errors.Is(err, apperr.ErrReferentialIntegrity))

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSynthesize_GeneratorErrorPassesThrough(t *testing.T) {
	f := setup(t)
	f.gen.Err = apperr.New(apperr.ErrGenerationTimeout, "", "slow")
	_, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "x"})
	assert.True(t, errors.Is(err, apperr.ErrGenerationTimeout))
}

func TestExpandAddition(t *testing.T) {
	f := setup(t)
	current := models.Graph{Nodes: []models.Node{{ID: "A", Data: models.NodeData{Label: "A"}}}}

	add, err := f.svc.ExpandAddition(context.Background(), " A ", current)
	require.NoError(t, err)
	require.Len(t, add.Nodes, 1)
	assert.Equal(t, "A-1", add.Nodes[0].ID)
	assert.Equal(t, "A", add.Edges[0].Source)
	assert.Equal(t, []string{"A"}, f.gen.Labels)

	_, err = f.svc.ExpandAddition(context.Background(), "", current)
	assert.True(t, errors.Is(err, apperr.ErrMissingInput))

	// The addition references a node the diagram does not have.
	_, err = f.svc.ExpandAddition(context.Background(), "Z", current)
	assert.True(t, errors.Is(err, apperr.ErrGeneration))
}

func TestExpandDiagram(t *testing.T) {
	f := setup(t)
	res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "Deep Work"})
	require.NoError(t, err)
	before, err := f.svc.Get(context.Background(), res.ID, "")
	require.NoError(t, err)

	entry, err := f.svc.ExpandDiagram(context.Background(), res.ID, "A", "")
	require.NoError(t, err)
	assert.Equal(t, "Deep Work", entry.Title)
	require.Len(t, entry.Nodes, 4)
	require.Len(t, entry.Edges, 3)
	added := entry.Nodes[3]
	assert.Equal(t, "A-1", added.ID)
	assert.Equal(t, models.RoleIdea, added.Role)
	assert.Greater(t, added.Position.Y, entry.Nodes[1].Position.Y)

	stored, err := f.svc.Get(context.Background(), res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entry.Nodes, stored.Nodes)
	assert.Equal(t, before.Timestamp, stored.Timestamp)

	assert.Equal(t, []string{
		"diagram.created:" + res.ID,
		"node.expanding:" + res.ID,
		"diagram.expanded:" + res.ID,
	}, f.events.Events())
}

func TestExpandDiagram_Errors(t *testing.T) {
	f := setup(t)
	res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "Deep Work"})
	require.NoError(t, err)

	_, err = f.svc.ExpandDiagram(context.Background(), "missing", "A", "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.ExpandDiagram(context.Background(), res.ID, "nope", "")
	assert.True(t, errors.Is(err, apperr.ErrUnknownAnchor))

	_, err = f.svc.ExpandDiagram(context.Background(), res.ID, "", "")
	assert.True(t, errors.Is(err, apperr.ErrMissingInput))

	// Expanding A twice adds A-1 again.
	_, err = f.svc.ExpandDiagram(context.Background(), res.ID, "A", "")
	require.NoError(t, err)
	_, err = f.svc.ExpandDiagram(context.Background(), res.ID, "A", "")
	assert.True(t, errors.Is(err, apperr.ErrDuplicateID))

	stored, err := f.svc.Get(context.Background(), res.ID, "")
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 4)
}

func TestGet_RelayoutDoesNotPersist(t *testing.T) {
	f := setup(t)
	res, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "Deep Work"})
	require.NoError(t, err)

	lr, err := f.svc.Get(context.Background(), res.ID, "lr")
	require.NoError(t, err)
	assert.Greater(t, lr.Nodes[1].Position.X, lr.Nodes[0].Position.X)
	assert.NotEqual(t, res.Nodes, lr.Nodes)

	stored, err := f.svc.Get(context.Background(), res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, res.Nodes, stored.Nodes)

	_, err = f.svc.Get(context.Background(), res.ID, "sideways")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestImportAndSave(t *testing.T) {
	f := setup(t)
	g := models.Graph{
		Nodes: []models.Node{{ID: "r", Data: models.NodeData{Label: "Root"}}, {ID: "c"}},
		Edges: []models.Edge{{ID: "e", Source: "r", Target: "c"}},
	}

	entry, err := f.svc.Import(context.Background(), "", g, "")
	require.NoError(t, err)
	assert.Equal(t, "Root", entry.Title)
	assert.Equal(t, models.RoleIdea, entry.Nodes[1].Role)

	g.Nodes = append(g.Nodes, models.Node{ID: "d"})
	g.Edges = append(g.Edges, models.Edge{ID: "e2", Source: "r", Target: "d"})
	updated, err := f.svc.Save(context.Background(), entry.ID, "ignored", g, "")
	require.NoError(t, err)
	assert.Equal(t, "Root", updated.Title)
	assert.Len(t, updated.Nodes, 3)

	stored, err := f.svc.Get(context.Background(), entry.ID, "")
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 3)

	_, err = f.svc.Import(context.Background(), "bad", models.Graph{
		Nodes: []models.Node{{ID: "a"}, {ID: "b"}},
		Edges: []models.Edge{{ID: "x", Source: "a", Target: "b"}, {ID: "y", Source: "b", Target: "a"}},
	}, "")
	assert.True(t, errors.Is(err, apperr.ErrCyclicGraph))

	assert.Equal(t, []string{"diagram.created:" + entry.ID, "diagram.updated:" + entry.ID}, f.events.Events())
}

func TestDeleteAndClear(t *testing.T) {
	f := setup(t)
	a, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "one"})
	require.NoError(t, err)
	_, err = f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "two"})
	require.NoError(t, err)

	// Load the session so Delete has to evict it.
	_, err = f.svc.ExpandDiagram(context.Background(), a.ID, "A", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), a.ID))
	_, err = f.svc.Get(context.Background(), a.ID, "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(f.svc.Delete(context.Background(), a.ID), apperr.ErrNotFound))

	require.NoError(t, f.svc.Clear(context.Background()))
	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	events := f.events.Events()
	assert.Equal(t, "history.cleared", events[len(events)-1])
}

func TestSearch(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "Deep Work"})
	require.NoError(t, err)
	_, err = f.svc.Synthesize(context.Background(), SynthesizeInput{Title: "Range"})
	require.NoError(t, err)

	hits, err := f.svc.Search(context.Background(), "Deep", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Deep Work", hits[0].Title)

	all, err := f.svc.Search(context.Background(), " ", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
