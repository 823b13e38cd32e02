package imports

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/minto/internal/diagramservice"
	"github.com/starford/minto/internal/history"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/storage"
	"github.com/starford/minto/internal/testutil"
)

const graphJSON = `{
	"nodes": [
		{"id": "A", "data": {"label": "Alpha"}},
		{"id": "B", "data": {"label": "Beta"}},
		{"id": "C", "data": {"label": "Gamma"}}
	],
	"edges": [
		{"id": "e1", "source": "A", "target": "B"},
		{"id": "e2", "source": "A", "target": "C"}
	]
}`

const markdownDoc = "---\ntitle: Plan B\nid: plan-b\ndirection: lr\n---\n\n# Ignored heading\n\n```json\n" +
	`{"nodes":[{"id":"r","data":{"label":"Root"}},{"id":"k","data":{"label":"Key"}}],"edges":[{"id":"e","source":"r","target":"k"}]}` +
	"\n```\n"

type countingSaver struct {
	Saver
	mu    sync.Mutex
	saves int
}

func (c *countingSaver) Save(ctx context.Context, id, title string, g models.Graph, dir models.Direction) (*models.HistoryEntry, error) {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Saver.Save(ctx, id, title, g, dir)
}

func (c *countingSaver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

type env struct {
	dir   string
	db    *history.DB
	saver *countingSaver
	im    *Importer
}

func setup(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	require.NoError(t, err)

	db := testutil.TestHistory(t)
	svc := diagramservice.New(db, &testutil.Generator{})
	t.Cleanup(svc.Close)

	saver := &countingSaver{Saver: svc}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return env{dir: dir, db: db, saver: saver, im: New(saver, db, store, logger)}
}

func (e env) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(e.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (e env) records(t *testing.T) map[string]history.ImportRecord {
	t.Helper()
	recs, err := e.db.ImportChecksums(context.Background())
	require.NoError(t, err)
	return recs
}

func TestDiagramID_Stable(t *testing.T) {
	assert.Equal(t, DiagramID("a/b.json"), DiagramID("a/b.json"))
	assert.NotEqual(t, DiagramID("a/b.json"), DiagramID("a/c.json"))
}

func TestSync_ImportsFiles(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.write(t, "team/a.json", graphJSON)
	e.write(t, "b.md", markdownDoc)

	require.NoError(t, e.im.Sync(ctx))

	a, err := e.db.Get(ctx, DiagramID("team/a.json"))
	require.NoError(t, err)
	assert.Equal(t, "a", a.Title)
	require.Len(t, a.Nodes, 3)
	assert.Equal(t, models.Position{X: 88, Y: 0}, a.Nodes[0].Position)
	assert.Equal(t, models.RoleRoot, a.Nodes[0].Role)

	b, err := e.db.Get(ctx, "plan-b")
	require.NoError(t, err)
	assert.Equal(t, "Plan B", b.Title)
	// LR: the child sits to the right of the root.
	assert.Greater(t, b.Nodes[1].Position.X, b.Nodes[0].Position.X)

	recs := e.records(t)
	assert.Equal(t, DiagramID("team/a.json"), recs["team/a.json"].DiagramID)
	assert.Equal(t, "plan-b", recs["b.md"].DiagramID)
}

func TestSync_SkipsUnchanged(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.write(t, "a.json", graphJSON)

	require.NoError(t, e.im.Sync(ctx))
	require.NoError(t, e.im.Sync(ctx))
	assert.Equal(t, 1, e.saver.count())

	e.write(t, "a.json", `{"nodes":[{"id":"A","data":{"label":"Solo"}}],"edges":[]}`)
	require.NoError(t, e.im.Sync(ctx))
	assert.Equal(t, 2, e.saver.count())

	entry, err := e.db.Get(ctx, DiagramID("a.json"))
	require.NoError(t, err)
	require.Len(t, entry.Nodes, 1)
	assert.Equal(t, "Solo", entry.Nodes[0].Data.Label)
}

func TestSync_InvalidFileSkipped(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.write(t, "bad.json", `{"nodes":[{"id":"A"}],"edges":[{"id":"e9","source":"A","target":"Z"}]}`)
	e.write(t, "good.json", graphJSON)

	require.NoError(t, e.im.Sync(ctx))

	recs := e.records(t)
	assert.Contains(t, recs, "good.json")
	assert.NotContains(t, recs, "bad.json")
	list, err := e.db.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSync_ForgetsRemovedFiles(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.write(t, "a.json", graphJSON)
	require.NoError(t, e.im.Sync(ctx))

	require.NoError(t, os.Remove(filepath.Join(e.dir, "a.json")))
	require.NoError(t, e.im.Sync(ctx))

	assert.Empty(t, e.records(t))
	_, err := e.db.Get(ctx, DiagramID("a.json"))
	assert.NoError(t, err, "the history entry outlives its file")
}

func TestImportFile_Synthesis(t *testing.T) {
	e := setup(t)
	e.write(t, "s.json", `{"reasoningSteps":["r"],"nodes":[{"id":"S","data":{"label":"S"}}],"edges":[]}`)

	id, err := e.im.ImportFile(context.Background(), "s.json")
	require.NoError(t, err)
	assert.Equal(t, DiagramID("s.json"), id)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, e env, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.im.Watch(ctx, e.dir, cb)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatch_NewFileImported(t *testing.T) {
	e := setup(t)

	var mu sync.Mutex
	var events []string
	startWatch(t, e, func(kind, path, _ string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	e.write(t, "new.json", graphJSON)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.records(t)["new.json"]
		return ok
	}, "new file not imported by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if ev == "imported:new.json" {
				return true
			}
		}
		return false
	}, "expected imported:new.json callback")
}

func TestWatch_NewDirWatched(t *testing.T) {
	e := setup(t)
	startWatch(t, e, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(e.dir, "subdir"), 0o755))
	time.Sleep(100 * time.Millisecond)
	e.write(t, "subdir/deep.md", markdownDoc)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.records(t)["subdir/deep.md"]
		return ok
	}, "file in new subdir not imported by watcher")
}

func TestWatch_DeleteForgets(t *testing.T) {
	e := setup(t)
	e.write(t, "del.json", graphJSON)
	require.NoError(t, e.im.Sync(context.Background()))
	require.Contains(t, e.records(t), "del.json")

	startWatch(t, e, nil)
	require.NoError(t, os.Remove(filepath.Join(e.dir, "del.json")))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.records(t)["del.json"]
		return !ok
	}, "deleted file still recorded")
}

func TestWatch_RenameReconciles(t *testing.T) {
	e := setup(t)
	e.write(t, "old.json", graphJSON)
	require.NoError(t, e.im.Sync(context.Background()))

	startWatch(t, e, nil)
	require.NoError(t, os.Rename(filepath.Join(e.dir, "old.json"), filepath.Join(e.dir, "renamed.json")))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		recs := e.records(t)
		_, oldOK := recs["old.json"]
		_, newOK := recs["renamed.json"]
		return !oldOK && newOK
	}, "rename reconciliation failed: old path should be forgotten and new path imported")
}

func TestExport_RoundTrips(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	g, err := decodeGraph([]byte(graphJSON))
	require.NoError(t, err)
	entry, err := e.saver.Save(ctx, "", "Plan: Q3", g, models.DirectionTB)
	require.NoError(t, err)
	saves := e.saver.count()

	rel, err := e.im.Export(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, entry.ID+".md", rel)

	// The recorded checksum matches, so a sync leaves the entry alone.
	require.NoError(t, e.im.Sync(ctx))
	assert.Equal(t, saves, e.saver.count())

	id, err := e.im.ImportFile(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, id)

	got, err := e.db.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan: Q3", got.Title)
	assert.Equal(t, entry.Nodes, got.Nodes)
	assert.Equal(t, entry.Edges, got.Edges)
}
