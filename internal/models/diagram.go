// Package models defines the domain types for minto diagrams.
package models

import "time"

// Role is the structural classification of a node, derived from edges.
// It doubles as the node type the rendering surface dispatches on.
type Role string

const (
	// RoleRoot marks a node that is not the target of any edge.
	RoleRoot Role = "synthesis"
	// RoleIdea marks a node with at least one incoming edge.
	RoleIdea Role = "idea"
)

// Direction is the rank axis of a layout.
type Direction string

const (
	DirectionTB Direction = "TB"
	DirectionLR Direction = "LR"
)

// Valid reports whether d is a supported layout direction.
func (d Direction) Valid() bool {
	return d == DirectionTB || d == DirectionLR
}

// Position is the top-left corner of a node box.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData carries the authored content of a node.
type NodeData struct {
	Label string `json:"label"`
}

// Node is a single box in a synthesis diagram.
type Node struct {
	ID       string   `json:"id"`
	Data     NodeData `json:"data"`
	Position Position `json:"position"`
	Role     Role     `json:"type,omitempty"`
}

// Label is a shorthand for n.Data.Label.
func (n Node) Label() string { return n.Data.Label }

// Edge is a directed connection from Source to Target.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the unit of layout and persistence. Order is insertion order.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a copy that shares no slices with g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	return out
}

// NodeIndex maps node ids to their position in g.Nodes.
func (g Graph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Synthesis is the structured payload produced by the generation service.
type Synthesis struct {
	ReasoningSteps []string `json:"reasoningSteps"`
	Nodes          []Node   `json:"nodes"`
	Edges          []Edge   `json:"edges"`
}

// Graph returns the diagram part of the synthesis.
func (s Synthesis) Graph() Graph {
	return Graph{Nodes: s.Nodes, Edges: s.Edges}
}

// HistoryEntry is a persisted diagram snapshot.
type HistoryEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// CreatedAt returns the entry timestamp as a time.Time.
func (e HistoryEntry) CreatedAt() time.Time { return time.UnixMilli(e.Timestamp) }

// Graph returns the diagram stored in the entry.
func (e HistoryEntry) Graph() Graph {
	return Graph{Nodes: e.Nodes, Edges: e.Edges}
}

// HistorySummary is the lightweight item returned by history listings.
type HistorySummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
}
