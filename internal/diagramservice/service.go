// Package diagramservice coordinates generation, layout, expansion and the
// history store. Transports (REST, MCP, the import watcher) call into it.
package diagramservice

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/fixture"
	"github.com/starford/minto/internal/generation"
	"github.com/starford/minto/internal/history"
	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/metrics"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/schema"
	"github.com/starford/minto/internal/session"
	"github.com/starford/minto/internal/sse"
)

// Publisher receives diagram events for live clients.
type Publisher interface {
	PublishDiagramEvent(kind string, data sse.DiagramEvent)
}

// SynthesisResult is the response of a synthesis.
type SynthesisResult struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	ReasoningSteps []string      `json:"reasoningSteps"`
	Nodes          []models.Node `json:"nodes"`
	Edges          []models.Edge `json:"edges"`
}

// SynthesizeInput is a synthesis request. Title, Document or both must be
// present.
type SynthesizeInput struct {
	Title     string
	Document  *generation.Document
	Direction models.Direction
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the layout engine.
func WithEngine(e *layout.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithDirection sets the direction used when a request names none.
func WithDirection(d models.Direction) Option {
	return func(s *Service) { s.direction = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the diagram application service.
type Service struct {
	history   history.Store
	gen       generation.Generator
	engine    *layout.Engine
	events    Publisher
	direction models.Direction
	logger    *slog.Logger
	hub       *session.Hub
}

// New creates a Service. Close releases its expansion sessions.
func New(store history.Store, gen generation.Generator, opts ...Option) *Service {
	s := &Service{
		history:   store,
		gen:       gen,
		direction: models.DirectionTB,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = layout.New(layout.Options{})
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.hub = session.NewHub(store, expander{gen: gen},
		session.WithEngine(s.engine),
		session.WithNotifier(s.relay),
		session.WithLogger(s.logger))
	return s
}

// Close stops all expansion sessions.
func (s *Service) Close() {
	s.hub.Close()
}

// Synthesize generates a diagram for a title or document, lays it out and
// records it in history. The reserved EXAMPLE title loads the built-in
// example instead of calling the generator.
func (s *Service) Synthesize(ctx context.Context, in SynthesizeInput) (*SynthesisResult, error) {
	title := strings.TrimSpace(in.Title)
	hasDoc := in.Document != nil && len(in.Document.Data) > 0

	if !hasDoc && fixture.IsExampleInput(title) {
		syn, err := fixture.Example()
		if err != nil {
			return nil, err
		}
		return s.record(ctx, fixture.Title, syn)
	}

	if title == "" && !hasDoc {
		return nil, apperr.New(apperr.ErrMissingInput, "title", "a title or a document is required")
	}
	dir, err := s.resolve(in.Direction)
	if err != nil {
		return nil, err
	}

	prompt := generation.Prompt{Title: title}
	if hasDoc {
		prompt.Document = in.Document
	}
	raw, err := s.gen.Synthesize(ctx, prompt)
	if err != nil {
		return nil, err
	}
	syn, err := schema.DecodeSynthesis(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrGeneration, err, "generated synthesis is invalid")
	}

	started := time.Now()
	laid, err := s.engine.Layout(syn.Graph(), dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrGeneration, err, "generated synthesis cannot be laid out")
	}
	metrics.ObserveLayout(string(dir), len(laid.Nodes), started)
	syn.Nodes, syn.Edges = laid.Nodes, laid.Edges

	return s.record(ctx, historyTitle(title, in.Document, laid), syn)
}

func (s *Service) record(ctx context.Context, title string, syn models.Synthesis) (*SynthesisResult, error) {
	entry, err := s.history.Put(ctx, "", title, syn.Graph())
	if err != nil {
		return nil, err
	}
	s.events.PublishDiagramEvent(sse.TypeDiagramCreated, sse.DiagramEvent{ID: entry.ID})
	return &SynthesisResult{
		ID:             entry.ID,
		Title:          entry.Title,
		ReasoningSteps: nonNil(syn.ReasoningSteps),
		Nodes:          entry.Nodes,
		Edges:          entry.Edges,
	}, nil
}

// historyTitle names a history entry: the user's title, else the document
// name, else the first root label.
func historyTitle(title string, doc *generation.Document, g models.Graph) string {
	if title != "" {
		return title
	}
	if doc != nil && doc.Filename != "" {
		return strings.TrimSuffix(filepath.Base(doc.Filename), filepath.Ext(doc.Filename))
	}
	for _, id := range layout.Roots(g) {
		if n, ok := g.Node(id); ok && n.Label() != "" {
			return n.Label()
		}
	}
	return "Untitled synthesis"
}

// ExpandAddition asks the generator for the children of nodeLabel and
// returns the addition only. Nothing is merged or stored.
func (s *Service) ExpandAddition(ctx context.Context, nodeLabel string, current models.Graph) (models.Graph, error) {
	return expandAddition(ctx, s.gen, nodeLabel, current)
}

func expandAddition(ctx context.Context, gen generation.Generator, nodeLabel string, current models.Graph) (models.Graph, error) {
	nodeLabel = strings.TrimSpace(nodeLabel)
	if nodeLabel == "" {
		return models.Graph{}, apperr.New(apperr.ErrMissingInput, "nodeLabel", "node label is required")
	}
	raw, err := gen.Expand(ctx, nodeLabel, current)
	if err != nil {
		return models.Graph{}, err
	}
	known := make([]string, len(current.Nodes))
	for i, n := range current.Nodes {
		known[i] = n.ID
	}
	syn, err := schema.DecodeSynthesis(raw, schema.WithKnownNodes(known...))
	if err != nil {
		return models.Graph{}, apperr.Wrap(apperr.ErrGeneration, err, "generated expansion is invalid")
	}
	return syn.Graph(), nil
}

// expander feeds session expansions from the generator.
type expander struct {
	gen generation.Generator
}

func (e expander) ExpandNode(ctx context.Context, anchor models.Node, current models.Graph) (models.Graph, error) {
	return expandAddition(ctx, e.gen, anchor.Label(), current)
}

// ExpandDiagram expands nodeID of a stored diagram, merges the addition,
// re-lays out and persists the result. Concurrent expansions of one diagram
// are serialized; expanding a node twice at once fails with
// apperr.ErrExpansionInProgress.
func (s *Service) ExpandDiagram(ctx context.Context, id, nodeID string, dir models.Direction) (*models.HistoryEntry, error) {
	if strings.TrimSpace(nodeID) == "" {
		return nil, apperr.New(apperr.ErrMissingInput, "nodeId", "node id is required")
	}
	dir, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	g, err := s.hub.Expand(ctx, id, nodeID, dir)
	if err != nil {
		return nil, err
	}
	entry, err := s.history.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, err
	}
	entry.Nodes, entry.Edges = g.Nodes, g.Edges
	return entry, nil
}

// relay forwards session events to the publisher.
func (s *Service) relay(e session.Event) {
	data := sse.DiagramEvent{ID: e.DiagramID, NodeID: e.NodeID}
	if e.Err != nil {
		data.Error = e.Err.Error()
	}
	s.events.PublishDiagramEvent(e.Kind, data)
}

// List returns the history, newest first.
func (s *Service) List(ctx context.Context) ([]models.HistorySummary, error) {
	return s.history.List(ctx)
}

// Search returns history entries matching query; an empty query lists all.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.HistorySummary, error) {
	if strings.TrimSpace(query) == "" {
		return s.history.List(ctx)
	}
	return s.history.Search(ctx, query, limit)
}

// Get returns a stored diagram. A non-empty dir lays it out again in that
// direction without persisting the result.
func (s *Service) Get(ctx context.Context, id string, dir models.Direction) (*models.HistoryEntry, error) {
	entry, err := s.history.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return entry, nil
	}
	g, err := s.Layout(entry.Graph(), dir)
	if err != nil {
		return nil, err
	}
	entry.Nodes, entry.Edges = g.Nodes, g.Edges
	return entry, nil
}

// Import validates, lays out and stores a client-supplied diagram.
func (s *Service) Import(ctx context.Context, title string, g models.Graph, dir models.Direction) (*models.HistoryEntry, error) {
	return s.Save(ctx, "", title, g, dir)
}

// Save lays out g and stores it under id. An existing entry keeps its title
// and timestamp and is replaced through its expansion session, so a merge in
// flight sees the new graph. An empty id creates a new entry.
func (s *Service) Save(ctx context.Context, id, title string, g models.Graph, dir models.Direction) (*models.HistoryEntry, error) {
	laid, err := s.Layout(g, dir)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = historyTitle("", nil, laid)
	}

	if id != "" {
		existing, err := s.history.Get(ctx, id)
		switch {
		case err == nil:
			if err := s.hub.Replace(ctx, id, laid); err != nil {
				return nil, err
			}
			existing.Nodes, existing.Edges = laid.Nodes, laid.Edges
			s.events.PublishDiagramEvent(sse.TypeDiagramUpdated, sse.DiagramEvent{ID: id})
			return existing, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	entry, err := s.history.Put(ctx, id, title, laid)
	if err != nil {
		return nil, err
	}
	s.events.PublishDiagramEvent(sse.TypeDiagramCreated, sse.DiagramEvent{ID: entry.ID})
	return &entry, nil
}

// Delete removes one diagram.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.history.Get(ctx, id); err != nil {
		return err
	}
	s.hub.Evict(id)
	if err := s.history.Delete(ctx, id); err != nil {
		return err
	}
	s.events.PublishDiagramEvent(sse.TypeDiagramDeleted, sse.DiagramEvent{ID: id})
	return nil
}

// Clear removes every diagram. Expansions in flight fail.
func (s *Service) Clear(ctx context.Context) error {
	s.hub.Reset()
	if err := s.history.Clear(ctx); err != nil {
		return err
	}
	s.events.PublishDiagramEvent(sse.TypeHistoryCleared, sse.DiagramEvent{})
	return nil
}

// Layout validates g and lays it out. An empty dir uses the configured
// default.
func (s *Service) Layout(g models.Graph, dir models.Direction) (models.Graph, error) {
	dir, err := s.resolve(dir)
	if err != nil {
		return models.Graph{}, err
	}
	started := time.Now()
	out, err := s.engine.Layout(g, dir)
	if err != nil {
		return models.Graph{}, err
	}
	metrics.ObserveLayout(string(dir), len(out.Nodes), started)
	return out, nil
}

// Engine returns the layout engine.
func (s *Service) Engine() *layout.Engine {
	return s.engine
}

func (s *Service) resolve(dir models.Direction) (models.Direction, error) {
	if dir == "" {
		return s.direction, nil
	}
	dir = models.Direction(strings.ToUpper(string(dir)))
	if !dir.Valid() {
		return "", apperr.Validation("direction", "unsupported direction %q", dir)
	}
	return dir, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishDiagramEvent(string, sse.DiagramEvent) {}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
