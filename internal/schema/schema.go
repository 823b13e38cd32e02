// Package schema decodes and validates diagram payloads against the canonical
// node/edge shape. Decoding is strict: unknown fields are rejected so that
// drift in generated output surfaces immediately. Nothing is ever repaired.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/models"
)

type wireData struct {
	Label *string `json:"label"`
}

type wireNode struct {
	ID       *string          `json:"id"`
	Data     *wireData        `json:"data"`
	Position *models.Position `json:"position,omitempty"`
	Type     models.Role      `json:"type,omitempty"`
}

type wireEdge struct {
	ID     *string `json:"id"`
	Source *string `json:"source"`
	Target *string `json:"target"`
}

type wireGraph struct {
	Nodes *[]wireNode `json:"nodes"`
	Edges *[]wireEdge `json:"edges"`
}

type wireSynthesis struct {
	ReasoningSteps *[]string   `json:"reasoningSteps"`
	Nodes          *[]wireNode `json:"nodes"`
	Edges          *[]wireEdge `json:"edges"`
}

// Decode strictly decodes a {nodes, edges} payload and validates it.
func Decode(raw []byte, opts ...Option) (models.Graph, error) {
	var w wireGraph
	if err := decodeStrict(raw, &w); err != nil {
		return models.Graph{}, err
	}
	if w.Nodes == nil {
		return models.Graph{}, apperr.Validation("nodes", "missing required field %q", "nodes")
	}
	if w.Edges == nil {
		return models.Graph{}, apperr.Validation("edges", "missing required field %q", "edges")
	}
	g, err := toGraph(*w.Nodes, *w.Edges, false)
	if err != nil {
		return models.Graph{}, err
	}
	if err := Validate(g, opts...); err != nil {
		return models.Graph{}, err
	}
	return g, nil
}

// DecodeSynthesis strictly decodes a {reasoningSteps, nodes, edges} generation
// payload and validates its graph.
func DecodeSynthesis(raw []byte, opts ...Option) (models.Synthesis, error) {
	var w wireSynthesis
	if err := decodeStrict(raw, &w); err != nil {
		return models.Synthesis{}, err
	}
	switch {
	case w.ReasoningSteps == nil:
		return models.Synthesis{}, apperr.Validation("reasoningSteps", "missing required field %q", "reasoningSteps")
	case w.Nodes == nil:
		return models.Synthesis{}, apperr.Validation("nodes", "missing required field %q", "nodes")
	case w.Edges == nil:
		return models.Synthesis{}, apperr.Validation("edges", "missing required field %q", "edges")
	}
	g, err := toGraph(*w.Nodes, *w.Edges, true)
	if err != nil {
		return models.Synthesis{}, err
	}
	if err := Validate(g, opts...); err != nil {
		return models.Synthesis{}, err
	}
	return models.Synthesis{
		ReasoningSteps: *w.ReasoningSteps,
		Nodes:          g.Nodes,
		Edges:          g.Edges,
	}, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "decode payload")
	}
	if _, err := dec.Token(); err != io.EOF {
		return apperr.Validation("", "unexpected data after payload")
	}
	return nil
}

// toGraph converts wire elements. Generated payloads must carry data.label;
// client graphs may omit it.
func toGraph(wn []wireNode, we []wireEdge, requireLabel bool) (models.Graph, error) {
	g := models.Graph{
		Nodes: make([]models.Node, 0, len(wn)),
		Edges: make([]models.Edge, 0, len(we)),
	}
	for i, n := range wn {
		if n.ID == nil {
			return models.Graph{}, apperr.Validation(fmt.Sprintf("nodes[%d]", i), "node %d: missing required field %q", i, "id")
		}
		if requireLabel && n.Data == nil {
			return models.Graph{}, apperr.Validation(*n.ID, "node %q: missing required field %q", *n.ID, "data")
		}
		if requireLabel && n.Data.Label == nil {
			return models.Graph{}, apperr.Validation(*n.ID, "node %q: missing required field %q", *n.ID, "data.label")
		}
		node := models.Node{ID: *n.ID, Role: n.Type}
		if n.Data != nil && n.Data.Label != nil {
			node.Data.Label = *n.Data.Label
		}
		if n.Position != nil {
			node.Position = *n.Position
		}
		g.Nodes = append(g.Nodes, node)
	}
	for i, e := range we {
		if e.ID == nil {
			return models.Graph{}, apperr.Validation(fmt.Sprintf("edges[%d]", i), "edge %d: missing required field %q", i, "id")
		}
		if e.Source == nil {
			return models.Graph{}, apperr.Validation(*e.ID, "edge %q: missing required field %q", *e.ID, "source")
		}
		if e.Target == nil {
			return models.Graph{}, apperr.Validation(*e.ID, "edge %q: missing required field %q", *e.ID, "target")
		}
		g.Edges = append(g.Edges, models.Edge{ID: *e.ID, Source: *e.Source, Target: *e.Target})
	}
	return g, nil
}

// Option configures Validate.
type Option func(*options)

type options struct {
	known map[string]struct{}
}

// WithKnownNodes lets edges reference node ids that live outside the graph
// being validated, such as the anchor of an expansion.
func WithKnownNodes(ids ...string) Option {
	return func(o *options) {
		for _, id := range ids {
			o.known[id] = struct{}{}
		}
	}
}

// Validate checks field rules, id uniqueness and referential integrity, in
// that order, and returns the first violation.
func Validate(g models.Graph, opts ...Option) error {
	o := options{known: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&o)
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := validation.ValidateStruct(n,
			validation.Field(&n.ID, validation.Required),
			validation.Field(&n.Role, validation.In(models.RoleRoot, models.RoleIdea)),
		); err != nil {
			return apperr.Validation(n.ID, "node %d: %v", i, err)
		}
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		if err := validation.ValidateStruct(e,
			validation.Field(&e.ID, validation.Required),
			validation.Field(&e.Source, validation.Required),
			validation.Field(&e.Target, validation.Required),
		); err != nil {
			return apperr.Validation(e.ID, "edge %d: %v", i, err)
		}
	}

	nodes := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return apperr.DuplicateID(n.ID, "node id %q appears more than once", n.ID)
		}
		nodes[n.ID] = struct{}{}
	}
	edges := make(map[string]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, dup := edges[e.ID]; dup {
			return apperr.DuplicateID(e.ID, "edge id %q appears more than once", e.ID)
		}
		edges[e.ID] = struct{}{}
	}

	exists := func(id string) bool {
		if _, ok := nodes[id]; ok {
			return true
		}
		_, ok := o.known[id]
		return ok
	}
	for _, e := range g.Edges {
		if !exists(e.Source) {
			return apperr.New(apperr.ErrReferentialIntegrity, e.ID, "edge %q references unknown source node %q", e.ID, e.Source)
		}
		if !exists(e.Target) {
			return apperr.New(apperr.ErrReferentialIntegrity, e.ID, "edge %q references unknown target node %q", e.ID, e.Target)
		}
	}
	return nil
}
