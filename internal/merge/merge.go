// Package merge applies an expansion addition to a diagram.
//
// Expand is a pure reducer: it never mutates its inputs and either returns a
// fully laid-out merged graph or an error, never a partial result.
package merge

import (
	"fmt"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/schema"
)

// Option configures Expand.
type Option func(*options)

type options struct {
	engine *layout.Engine
	dir    models.Direction
	remap  bool
}

// WithEngine sets the layout engine used for the relayout.
func WithEngine(e *layout.Engine) Option {
	return func(o *options) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithDirection sets the layout direction of the merged graph.
func WithDirection(d models.Direction) Option {
	return func(o *options) {
		if d != "" {
			o.dir = d
		}
	}
}

// WithIDRemap renames addition node and edge ids that collide with the base
// instead of rejecting them. Colliding ids get a numeric suffix ("n1-2",
// "n1-3", ...) and addition edges are rewritten to follow renamed nodes.
func WithIDRemap() Option {
	return func(o *options) { o.remap = true }
}

// Expand merges addition into base at anchorID and relays out the result.
//
// The anchor must exist in base. The addition is validated with the base
// node ids visible, so its edges may hang off any existing node. Any addition
// id already used in base fails with apperr.ErrDuplicateID unless WithIDRemap
// is given. The merged graph is base followed by addition, relative order
// preserved on both sides.
func Expand(base models.Graph, anchorID string, addition models.Graph, opts ...Option) (models.Graph, error) {
	o := options{dir: models.DirectionTB}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = layout.New(layout.Options{})
	}

	if _, ok := base.Node(anchorID); !ok {
		return models.Graph{}, apperr.New(apperr.ErrUnknownAnchor, anchorID,
			"anchor node %q is not part of the diagram", anchorID)
	}

	add := addition.Clone()
	if o.remap {
		add = remapIDs(base, add)
	}

	baseNodes := make([]string, len(base.Nodes))
	for i, n := range base.Nodes {
		baseNodes[i] = n.ID
	}
	if err := schema.Validate(add, schema.WithKnownNodes(baseNodes...)); err != nil {
		return models.Graph{}, err
	}

	nodeIDs := make(map[string]struct{}, len(base.Nodes))
	for _, id := range baseNodes {
		nodeIDs[id] = struct{}{}
	}
	for _, n := range add.Nodes {
		if _, ok := nodeIDs[n.ID]; ok {
			return models.Graph{}, apperr.DuplicateID(n.ID, "node id %q already exists in the diagram", n.ID)
		}
	}
	edgeIDs := make(map[string]struct{}, len(base.Edges))
	for _, e := range base.Edges {
		edgeIDs[e.ID] = struct{}{}
	}
	for _, e := range add.Edges {
		if _, ok := edgeIDs[e.ID]; ok {
			return models.Graph{}, apperr.DuplicateID(e.ID, "edge id %q already exists in the diagram", e.ID)
		}
	}

	merged := base.Clone()
	merged.Nodes = append(merged.Nodes, add.Nodes...)
	merged.Edges = append(merged.Edges, add.Edges...)
	return o.engine.Layout(merged, o.dir)
}

func remapIDs(base, add models.Graph) models.Graph {
	usedNodes := make(map[string]struct{}, len(base.Nodes)+len(add.Nodes))
	baseNodes := make(map[string]struct{}, len(base.Nodes))
	for _, n := range base.Nodes {
		usedNodes[n.ID] = struct{}{}
		baseNodes[n.ID] = struct{}{}
	}
	for _, n := range add.Nodes {
		usedNodes[n.ID] = struct{}{}
	}

	renamed := make(map[string]string)
	for i, n := range add.Nodes {
		if _, ok := baseNodes[n.ID]; !ok {
			continue
		}
		if _, done := renamed[n.ID]; done {
			continue
		}
		id := freshID(n.ID, usedNodes)
		renamed[n.ID] = id
		add.Nodes[i].ID = id
	}

	usedEdges := make(map[string]struct{}, len(base.Edges)+len(add.Edges))
	baseEdges := make(map[string]struct{}, len(base.Edges))
	for _, e := range base.Edges {
		usedEdges[e.ID] = struct{}{}
		baseEdges[e.ID] = struct{}{}
	}
	for _, e := range add.Edges {
		usedEdges[e.ID] = struct{}{}
	}
	for i, e := range add.Edges {
		if id, ok := renamed[e.Source]; ok {
			add.Edges[i].Source = id
		}
		if id, ok := renamed[e.Target]; ok {
			add.Edges[i].Target = id
		}
		if _, ok := baseEdges[e.ID]; ok {
			add.Edges[i].ID = freshID(e.ID, usedEdges)
		}
	}
	return add
}

func freshID(id string, used map[string]struct{}) string {
	for k := 2; ; k++ {
		candidate := fmt.Sprintf("%s-%d", id, k)
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
	}
}

// Reachable returns the ids reachable from start along edge direction,
// start included. It returns nil when start is not a node of g.
func Reachable(g models.Graph, start string) map[string]bool {
	if _, ok := g.Node(start); !ok {
		return nil
	}
	succ := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		succ[e.Source] = append(succ[e.Source], e.Target)
	}
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range succ[id] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// Detached returns the ids of merged.Nodes[from:] (the addition, after any
// remapping) that cannot be reached from the anchor.
func Detached(merged models.Graph, anchorID string, from int) []string {
	if from < 0 || from > len(merged.Nodes) {
		return nil
	}
	seen := Reachable(merged, anchorID)
	var out []string
	for _, n := range merged.Nodes[from:] {
		if !seen[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}
