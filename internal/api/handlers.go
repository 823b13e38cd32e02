package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/minto/internal/diagramservice"
	"github.com/starford/minto/internal/generation"
	"github.com/starford/minto/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *diagramservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *diagramservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Synthesize handles POST /api/synthesize.
//
//	@Summary		Generate a synthesis diagram for a title or a document
//	@Tags			generation
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			body	body		SynthesizeRequest	false	"Title to synthesize"
//	@Param			file	formData	file				false	"PDF or text document"
//	@Success		201		{object}	SynthesisResponse
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Failure		504		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/synthesize [post]
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var (
		req SynthesizeRequest
		doc *generation.Document
		err error
	)
	if isMultipart(r) {
		req, doc, err = readUpload(w, r)
	} else {
		err = decodeJSON(w, r, &req)
	}
	if err != nil {
		writeError(w, r, "synthesize", err)
		return
	}

	res, err := h.svc.Synthesize(r.Context(), diagramservice.SynthesizeInput{
		Title:     req.Title,
		Document:  doc,
		Direction: models.Direction(req.Direction),
	})
	if err != nil {
		writeError(w, r, "synthesize", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Expand handles POST /api/expand.
//
//	@Summary		Generate the children of one node without storing anything
//	@Tags			generation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExpandRequest	true	"Node to expand and the current diagram"
//	@Success		200		{object}	GraphResponse
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Failure		504		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/expand [post]
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "expand", err)
		return
	}
	add, err := h.svc.ExpandAddition(r.Context(), req.NodeLabel, req.graph())
	if err != nil {
		writeError(w, r, "expand", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: add.Nodes, Edges: add.Edges})
}

// Layout handles POST /api/layout.
//
//	@Summary		Lay out a diagram without storing it
//	@Tags			layout
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LayoutRequest	true	"Diagram to lay out"
//	@Success		200		{object}	GraphResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/layout [post]
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "layout", err)
		return
	}
	g, err := h.svc.Layout(req.graph(), models.Direction(req.Direction))
	if err != nil {
		writeError(w, r, "layout", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: g.Nodes, Edges: g.Edges})
}

// ListDiagrams handles GET /api/diagrams.
//
//	@Summary		List history entries, newest first
//	@Tags			diagrams
//	@Produce		json
//	@Param			q		query		string	false	"Search titles and node labels"
//	@Param			limit	query		int		false	"Max search results"
//	@Success		200		{object}	DiagramListResponse
//	@Security		BearerAuth
//	@Router			/diagrams [get]
func (h *Handler) ListDiagrams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := h.svc.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeError(w, r, "list diagrams", err)
		return
	}
	writeJSON(w, http.StatusOK, DiagramListResponse{Diagrams: items})
}

// GetDiagram handles GET /api/diagrams/{id}.
//
//	@Summary		Get a stored diagram
//	@Tags			diagrams
//	@Produce		json
//	@Param			id			path		string	true	"Diagram id"
//	@Param			direction	query		string	false	"Lay out again in this direction without storing"	Enums(TB, LR)
//	@Success		200			{object}	DiagramResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diagrams/{id} [get]
func (h *Handler) GetDiagram(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir := models.Direction(r.URL.Query().Get("direction"))
	entry, err := h.svc.Get(r.Context(), id, dir)
	if err != nil {
		writeError(w, r, "get diagram", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ImportDiagram handles POST /api/diagrams.
//
//	@Summary		Validate, lay out and store a diagram
//	@Tags			diagrams
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Diagram to store"
//	@Success		201		{object}	DiagramResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diagrams [post]
func (h *Handler) ImportDiagram(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "import diagram", err)
		return
	}
	entry, err := h.svc.Import(r.Context(), req.Title, req.graph(), models.Direction(req.Direction))
	if err != nil {
		writeError(w, r, "import diagram", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ExpandDiagram handles POST /api/diagrams/{id}/expand.
//
//	@Summary		Expand a node of a stored diagram and store the merged result
//	@Tags			diagrams
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Diagram id"
//	@Param			body	body		ExpandDiagramRequest	true	"Node to expand"
//	@Success		200		{object}	DiagramResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		504		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diagrams/{id}/expand [post]
func (h *Handler) ExpandDiagram(w http.ResponseWriter, r *http.Request) {
	var req ExpandDiagramRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "expand diagram", err)
		return
	}
	entry, err := h.svc.ExpandDiagram(r.Context(), chi.URLParam(r, "id"), req.NodeID, models.Direction(req.Direction))
	if err != nil {
		writeError(w, r, "expand diagram", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteDiagram handles DELETE /api/diagrams/{id}.
//
//	@Summary		Delete a stored diagram
//	@Tags			diagrams
//	@Param			id	path	string	true	"Diagram id"
//	@Success		204	"Diagram deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diagrams/{id} [delete]
func (h *Handler) DeleteDiagram(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete diagram", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearDiagrams handles DELETE /api/diagrams.
//
//	@Summary		Clear the history
//	@Tags			diagrams
//	@Success		204	"History cleared"
//	@Security		BearerAuth
//	@Router			/diagrams [delete]
func (h *Handler) ClearDiagrams(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		writeError(w, r, "clear diagrams", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
