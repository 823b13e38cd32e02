package api

import (
	"github.com/starford/minto/internal/diagramservice"
	"github.com/starford/minto/internal/models"
)

// SynthesizeRequest is the JSON body of POST /api/synthesize. The multipart
// form carries the same fields plus a "file" part.
type SynthesizeRequest struct {
	Title     string `json:"title" example:"Thinking, Fast and Slow" validate:"max=500"`
	Direction string `json:"direction,omitempty" example:"TB" validate:"omitempty,oneof=TB LR tb lr"`
}

// SynthesisResponse is a generated, laid-out and recorded diagram.
type SynthesisResponse = diagramservice.SynthesisResult

// ExpandRequest is the body of POST /api/expand.
type ExpandRequest struct {
	NodeLabel    string        `json:"nodeLabel" example:"Focus compounds over time" validate:"max=2000"`
	CurrentNodes []models.Node `json:"currentNodes"`
	CurrentEdges []models.Edge `json:"currentEdges"`
}

// GraphResponse is a bare diagram.
type GraphResponse struct {
	Nodes []models.Node `json:"nodes" validate:"required"`
	Edges []models.Edge `json:"edges" validate:"required"`
}

// ExpandDiagramRequest is the body of POST /api/diagrams/{id}/expand.
type ExpandDiagramRequest struct {
	NodeID    string `json:"nodeId" example:"key-1" validate:"required"`
	Direction string `json:"direction,omitempty" example:"TB" validate:"omitempty,oneof=TB LR tb lr"`
}

// ImportRequest is the body of POST /api/diagrams.
type ImportRequest struct {
	Title     string        `json:"title" example:"Quarterly review" validate:"max=500"`
	Nodes     []models.Node `json:"nodes" validate:"required"`
	Edges     []models.Edge `json:"edges" validate:"required"`
	Direction string        `json:"direction,omitempty" example:"TB" validate:"omitempty,oneof=TB LR tb lr"`
}

// LayoutRequest is the body of POST /api/layout.
type LayoutRequest struct {
	Nodes     []models.Node `json:"nodes" validate:"required"`
	Edges     []models.Edge `json:"edges" validate:"required"`
	Direction string        `json:"direction,omitempty" example:"LR" validate:"omitempty,oneof=TB LR tb lr"`
}

// DiagramListResponse wraps history listings, newest first.
type DiagramListResponse struct {
	Diagrams []models.HistorySummary `json:"diagrams" validate:"required"`
}

// DiagramResponse is a stored diagram.
type DiagramResponse = models.HistoryEntry

func (r LayoutRequest) graph() models.Graph {
	return models.Graph{Nodes: r.Nodes, Edges: r.Edges}
}

func (r ImportRequest) graph() models.Graph {
	return models.Graph{Nodes: r.Nodes, Edges: r.Edges}
}

func (r ExpandRequest) graph() models.Graph {
	g := models.Graph{Nodes: r.CurrentNodes, Edges: r.CurrentEdges}
	if g.Nodes == nil {
		g.Nodes = []models.Node{}
	}
	if g.Edges == nil {
		g.Edges = []models.Edge{}
	}
	return g
}
