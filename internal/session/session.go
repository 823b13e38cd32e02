// Package session serializes expansions per diagram.
//
// A Hub owns one Diagram per history id. Each Diagram runs a single event
// loop goroutine that owns the current graph and the set of nodes being
// expanded; callers talk to it through channels, so no mutexes guard diagram
// state. Generation runs outside the loop. Resolved additions are queued
// back to the loop and merged FIFO in resolution order against the latest
// merged graph, so concurrent expansions never lose updates.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/models"
)

// ErrClosed is returned by a Hub or Diagram that has been shut down.
var ErrClosed = errors.New("session: closed")

// Expander produces the addition for an anchor node, given the diagram it
// belongs to.
type Expander interface {
	ExpandNode(ctx context.Context, anchor models.Node, current models.Graph) (models.Graph, error)
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, anchor models.Node, current models.Graph) (models.Graph, error)

// ExpandNode calls f.
func (f ExpanderFunc) ExpandNode(ctx context.Context, anchor models.Node, current models.Graph) (models.Graph, error) {
	return f(ctx, anchor, current)
}

// Store is the part of the history store a Hub needs.
type Store interface {
	Get(ctx context.Context, id string) (*models.HistoryEntry, error)
	Update(ctx context.Context, id string, g models.Graph) error
}

// Event kinds emitted by diagram loops.
const (
	EventExpanding = "node.expanding"
	EventExpanded  = "diagram.expanded"
	EventFailed    = "node.expand_failed"
)

// Event describes a state change of a diagram.
type Event struct {
	Kind      string
	DiagramID string
	NodeID    string
	Graph     models.Graph
	Err       error
}

// Notifier receives diagram events. It is called from diagram loops and
// must not block.
type Notifier func(Event)

// Option configures a Hub.
type Option func(*Hub)

// WithEngine sets the layout engine used for merges.
func WithEngine(e *layout.Engine) Option {
	return func(h *Hub) { h.engine = e }
}

// WithNotifier registers the event callback.
func WithNotifier(fn Notifier) Option {
	return func(h *Hub) { h.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// Hub hands out Diagram sessions keyed by history id.
type Hub struct {
	store    Store
	expander Expander
	engine   *layout.Engine
	notify   Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	diagrams map[string]*Diagram
	pending  map[string]chan struct{}
	closed   bool
}

// NewHub creates a Hub.
func NewHub(store Store, expander Expander, opts ...Option) *Hub {
	h := &Hub{
		store:    store,
		expander: expander,
		diagrams: make(map[string]*Diagram),
		pending:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.engine == nil {
		h.engine = layout.New(layout.Options{})
	}
	if h.notify == nil {
		h.notify = func(Event) {}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Expand expands nodeID of diagram id and returns the merged, laid-out graph.
// See Diagram.Expand.
func (h *Hub) Expand(ctx context.Context, id, nodeID string, dir models.Direction) (models.Graph, error) {
	d, err := h.Diagram(ctx, id)
	if err != nil {
		return models.Graph{}, err
	}
	return d.Expand(ctx, nodeID, dir)
}

// Diagram returns the session for id, loading it from the store on first
// use. A missing entry yields the store's not-found error.
//
// Loading and unloading of one id are serialized: while an id is pending,
// other callers wait, so a loop never starts on a graph read before a
// concurrent write to that id.
func (h *Hub) Diagram(ctx context.Context, id string) (*Diagram, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrClosed
		}
		if d, ok := h.diagrams[id]; ok {
			h.mu.Unlock()
			return d, nil
		}
		wait, busy := h.pending[id]
		if !busy {
			break
		}
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	done := make(chan struct{})
	h.pending[id] = done
	h.mu.Unlock()

	entry, err := h.store.Get(ctx, id)

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
	close(done)
	if err != nil {
		return nil, err
	}
	if h.closed {
		return nil, ErrClosed
	}
	d := newDiagram(h, id, entry.Graph())
	h.diagrams[id] = d
	return d, nil
}

// Replace sets the graph of a diagram through its loop, loading the
// diagram first if needed.
func (h *Hub) Replace(ctx context.Context, id string, g models.Graph) error {
	d, err := h.Diagram(ctx, id)
	if err != nil {
		return err
	}
	return d.replace(ctx, g)
}

// Evict stops the session of one diagram, if loaded. The next use reloads it
// from the store once the old loop has stopped.
func (h *Hub) Evict(id string) {
	h.mu.Lock()
	d, ok := h.diagrams[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.diagrams, id)
	done := make(chan struct{})
	h.pending[id] = done
	h.mu.Unlock()

	d.Close()

	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
	close(done)
}

// Reset stops every loaded diagram. Expansions still awaiting generation
// fail with ErrClosed when they resolve.
func (h *Hub) Reset() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.diagrams))
	for id := range h.diagrams {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Evict(id)
	}
}

// Close stops every diagram and rejects further use.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Reset()
}
