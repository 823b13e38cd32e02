// Package layout computes deterministic hierarchical positions for synthesis
// diagrams.
//
// The engine is a layered (Sugiyama-style) layout:
//
//  1. nodes are ranked by longest path from the sources, then sources are
//     pulled down next to their nearest successor;
//  2. edges spanning several ranks are split with virtual nodes;
//  3. the order inside each rank is refined with alternating median sweeps,
//     keeping the order with the fewest crossings;
//  4. cross-axis coordinates are aligned to neighbour means under minimum
//     separation constraints (isotonic regression per rank);
//  5. centres are converted to top-left positions.
//
// Every step is a function of topology and box sizes only, so a layout is
// idempotent: re-running it on its own output yields identical positions.
package layout

import (
	"math"

	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/schema"
)

// Size is a node box in layout units.
type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Options tunes the engine. Zero fields fall back to DefaultOptions.
type Options struct {
	RankSep         float64
	NodeSep         float64
	RootSize        Size
	ChildSize       Size
	OrderIterations int
	AlignIterations int
}

// DefaultOptions returns the reference spacing and box sizes.
func DefaultOptions() Options {
	return Options{
		RankSep:         80,
		NodeSep:         48,
		RootSize:        Size{Width: 320, Height: 72},
		ChildSize:       Size{Width: 224, Height: 72},
		OrderIterations: 24,
		AlignIterations: 8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RankSep <= 0 {
		o.RankSep = d.RankSep
	}
	if o.NodeSep <= 0 {
		o.NodeSep = d.NodeSep
	}
	if o.RootSize.Width <= 0 || o.RootSize.Height <= 0 {
		o.RootSize = d.RootSize
	}
	if o.ChildSize.Width <= 0 || o.ChildSize.Height <= 0 {
		o.ChildSize = d.ChildSize
	}
	if o.OrderIterations <= 0 {
		o.OrderIterations = d.OrderIterations
	}
	if o.AlignIterations <= 0 {
		o.AlignIterations = d.AlignIterations
	}
	// The final alignment pass must centre parents over children.
	if o.AlignIterations%2 != 0 {
		o.AlignIterations++
	}
	return o
}

// Engine lays out graphs. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// BoxSize returns the box used for a node with or without a parent.
func (e *Engine) BoxSize(hasParent bool) Size {
	if hasParent {
		return e.opts.ChildSize
	}
	return e.opts.RootSize
}

// Layout returns a copy of g with every node's position and role assigned.
// Node and edge order are preserved. A graph that has no topological order
// fails with apperr.ErrCyclicGraph.
func (e *Engine) Layout(g models.Graph, dir models.Direction) (models.Graph, error) {
	if !dir.Valid() {
		return models.Graph{}, invalidDirection(dir)
	}
	if err := schema.Validate(g); err != nil {
		return models.Graph{}, err
	}

	out := AssignRoles(g)
	if len(out.Nodes) == 0 {
		return out, nil
	}

	ranks, err := rankNodes(out)
	if err != nil {
		return models.Graph{}, err
	}

	lg := e.buildLayers(out, ranks)
	lg.reduceCrossings(e.opts.OrderIterations)
	centres := lg.place(e.opts, dir)

	for i := range out.Nodes {
		size := lg.nodes[i].box
		c := centres[i]
		out.Nodes[i].Position = models.Position{
			X: round2(c.X - size.Width/2),
			Y: round2(c.Y - size.Height/2),
		}
	}
	return out, nil
}

// Rank returns the rank of every node keyed by id.
func (e *Engine) Rank(g models.Graph) (map[string]int, error) {
	if err := schema.Validate(g); err != nil {
		return nil, err
	}
	ranks, err := rankNodes(g)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(ranks))
	for i, r := range ranks {
		out[g.Nodes[i].ID] = r
	}
	return out, nil
}

// AssignRoles returns a copy of g where every node that is the target of an
// edge is an idea and every other node is a root.
func AssignRoles(g models.Graph) models.Graph {
	out := g.Clone()
	targets := make(map[string]struct{}, len(out.Edges))
	for _, e := range out.Edges {
		targets[e.Target] = struct{}{}
	}
	for i := range out.Nodes {
		if _, ok := targets[out.Nodes[i].ID]; ok {
			out.Nodes[i].Role = models.RoleIdea
		} else {
			out.Nodes[i].Role = models.RoleRoot
		}
	}
	return out
}

// Roots returns the ids of nodes without incoming edges, in node order.
func Roots(g models.Graph) []string {
	targets := make(map[string]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		targets[e.Target] = struct{}{}
	}
	var roots []string
	for _, n := range g.Nodes {
		if _, ok := targets[n.ID]; !ok {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}
