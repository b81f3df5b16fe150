package handlers

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// DocumentHandler serves document editing, queries and workflow transitions.
type DocumentHandler struct {
	*BaseHandler
	documents *document.Service
	engine    *workflow.Engine
	history   audit.Recorder
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(base *BaseHandler, documents *document.Service, engine *workflow.Engine, history audit.Recorder) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, documents: documents, engine: engine, history: history}
}

// Create handles POST /documents.
func (h *DocumentHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	header, lines, err := req.ToHeader()
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.documents.CreateDraft(c.Request.Context(), actor, header, lines...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDocument(doc))
}

// List handles GET /documents.
func (h *DocumentHandler) List(c *gin.Context) {
	var q dto.DocumentListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := q.ToFilter()

	docs, err := h.documents.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromDocuments(docs), filter.Limit, filter.Offset))
}

// Get handles GET /documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// History handles GET /documents/:id/history.
func (h *DocumentHandler) History(c *gin.Context) {
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	// 404 for unknown documents rather than an empty trail.
	if _, err := h.documents.Get(c.Request.Context(), docID); err != nil {
		h.Error(c, err)
		return
	}
	entries, err := h.history.List(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromHistory(entries))
}

// AddLine handles POST /documents/:id/lines.
func (h *DocumentHandler) AddLine(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.LineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.documents.AddLine(c.Request.Context(), actor, docID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDocument(doc))
}

// RemoveLine handles DELETE /documents/:id/lines/:lineId.
func (h *DocumentHandler) RemoveLine(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}

	doc, err := h.documents.RemoveLine(c.Request.Context(), actor, docID, lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Transition returns the handler for POST /documents/:id/<action>.
// The body is optional and only carries a reason.
func (h *DocumentHandler) Transition(action workflow.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.Actor(c)
		if !ok {
			return
		}
		docID, ok := h.ParseID(c, "id")
		if !ok {
			return
		}
		var req dto.ReasonRequest
		if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
			return
		}

		doc, err := h.engine.Transition(c.Request.Context(), docID, workflow.Request{
			Action: action,
			Actor:  actor,
			Reason: req.Reason,
		})
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.FromDocument(doc))
	}
}
