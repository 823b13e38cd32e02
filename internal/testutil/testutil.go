// Package testutil provides shared test helpers for history stores and
// generators.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/starford/minto/internal/generation"
	"github.com/starford/minto/internal/history"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/sse"
)

// TestHistory creates a temporary SQLite history store that is automatically
// cleaned up.
func TestHistory(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "minto-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Generator is a scripted generation.Generator. It returns the configured
// payloads and records every call.
type Generator struct {
	mu sync.Mutex

	SynthesisPayload string
	ExpandPayload    func(nodeLabel string, current models.Graph) string
	Err              error

	Prompts []generation.Prompt
	Labels  []string
}

var _ generation.Generator = (*Generator)(nil)

// Synthesize returns SynthesisPayload.
func (g *Generator) Synthesize(_ context.Context, p generation.Prompt) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, p)
	if g.Err != nil {
		return nil, g.Err
	}
	return []byte(g.SynthesisPayload), nil
}

// Expand returns ExpandPayload(nodeLabel, current).
func (g *Generator) Expand(_ context.Context, nodeLabel string, current models.Graph) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Labels = append(g.Labels, nodeLabel)
	if g.Err != nil {
		return nil, g.Err
	}
	if g.ExpandPayload == nil {
		return []byte(`{"reasoningSteps":[],"nodes":[],"edges":[]}`), nil
	}
	return []byte(g.ExpandPayload(nodeLabel, current)), nil
}

// Calls returns the number of synthesis and expansion calls made so far.
func (g *Generator) Calls() (synthesize, expand int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Prompts), len(g.Labels)
}

// Recorder collects published diagram events.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// PublishDiagramEvent records the event as "kind" or "kind:id".
func (r *Recorder) PublishDiagramEvent(kind string, data sse.DiagramEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data.ID != "" {
		kind += ":" + data.ID
	}
	r.events = append(r.events, kind)
}

// Events returns the recorded events in publish order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
