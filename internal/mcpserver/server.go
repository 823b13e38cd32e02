// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Minto tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/minto/internal/diagramservice"
	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/schema"
)

const graphFormatURI = "minto://graph-format"

// Server wraps the MCP server with Minto tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *diagramservice.Service
	docs *documentLoader
}

// New creates a new MCP server with all Minto tools registered.
func New(svc *diagramservice.Service) *Server {
	s := &Server{svc: svc, docs: newDocumentLoader()}

	s.mcp = server.NewMCPServer(
		"Minto",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("synthesize_topic",
		mcp.WithDescription("Generate a synthesis tree for a topic, lay it out and store it in history. "+
			"The title EXAMPLE loads a built-in example."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Topic or question to synthesize")),
		mcp.WithString("direction", mcp.Description("Layout direction: TB (default) or LR")),
	), s.synthesizeTopic)

	s.mcp.AddTool(mcp.NewTool("synthesize_document",
		mcp.WithDescription("Generate a synthesis tree from a PDF, text or Markdown document. "+
			"The document is given as an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("Optional filename; derived from the URL when empty")),
		mcp.WithString("title", mcp.Description("Optional history title")),
		mcp.WithString("direction", mcp.Description("Layout direction: TB (default) or LR")),
	), s.synthesizeDocument)

	s.mcp.AddTool(mcp.NewTool("expand_node",
		mcp.WithDescription("Ask the model for the children of one node of a stored diagram "+
			"and merge them in. Returns the updated diagram."),
		mcp.WithString("diagram_id", mcp.Required(), mcp.Description("History id of the diagram")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Id of the node to expand")),
		mcp.WithString("direction", mcp.Description("Layout direction: TB (default) or LR")),
	), s.expandNode)

	s.mcp.AddTool(mcp.NewTool("list_diagrams",
		mcp.WithDescription("List stored diagrams, newest first, optionally filtered by a search query."),
		mcp.WithString("query", mcp.Description("Optional search over titles and node labels")),
	), s.listDiagrams)

	s.mcp.AddTool(mcp.NewTool("get_diagram",
		mcp.WithDescription("Read a stored diagram with its nodes and edges."),
		mcp.WithString("id", mcp.Required(), mcp.Description("History id of the diagram")),
		mcp.WithString("direction", mcp.Description("Optional direction to lay the diagram out again in")),
	), s.getDiagram)

	s.mcp.AddTool(mcp.NewTool("layout_graph",
		mcp.WithDescription("Validate and lay out a graph without storing it. "+
			"The graph MUST follow the graph format contract; read it first via "+
			"the get_graph_contract tool or the "+graphFormatURI+" resource."),
		mcp.WithString("graph", mcp.Required(), mcp.Description(`Graph JSON: {"nodes": [...], "edges": [...]}`)),
		mcp.WithString("direction", mcp.Description("Layout direction: TB (default) or LR")),
	), s.layoutGraph)

	s.mcp.AddTool(mcp.NewTool("get_graph_contract",
		mcp.WithDescription("Returns the Minto graph format contract. "+
			"Call this before sending graphs to layout_graph."),
	), s.getGraphContract)

	// Resource: graph format contract.
	s.mcp.AddResource(
		mcp.NewResource(graphFormatURI, "Graph Format Contract",
			mcp.WithResourceDescription("Node and edge JSON format used by every Minto tool."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGraphFormatResource,
	)

	return s
}

// Serve runs the MCP server over in/out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) synthesizeTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Synthesize(ctx, diagramservice.SynthesizeInput{
		Title:     title,
		Direction: direction(req),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) synthesizeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.docs.Load(ctx, rawURL, req.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Synthesize(ctx, diagramservice.SynthesizeInput{
		Title:     req.GetString("title", ""),
		Document:  doc,
		Direction: direction(req),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) expandNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("diagram_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.ExpandDiagram(ctx, id, nodeID, direction(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entry), nil
}

func (s *Server) listDiagrams(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.Search(ctx, req.GetString("query", ""), 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("no diagrams found"), nil
	}
	return jsonResult(list), nil
}

func (s *Server) getDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Get(ctx, id, direction(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entry), nil
}

func (s *Server) layoutGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("graph")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := schema.Decode([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	laid, err := s.svc.Layout(g, direction(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(laid), nil
}

func (s *Server) getGraphContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(GraphFormatContract), nil
}

func (s *Server) readGraphFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      graphFormatURI,
			MIMEType: "text/markdown",
			Text:     GraphFormatContract,
		},
	}, nil
}

func direction(req mcp.CallToolRequest) models.Direction {
	return models.Direction(req.GetString("direction", ""))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}
