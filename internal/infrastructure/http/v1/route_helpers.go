package v1

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/workflow"
	"stockflow/internal/infrastructure/http/v1/handlers"
)

// transitionRoutes maps path suffixes under /documents/:id to workflow actions.
var transitionRoutes = []struct {
	path   string
	action workflow.Action
}{
	{"/submit", workflow.ActionSubmit},
	{"/approve", workflow.ActionApprove},
	{"/reject", workflow.ActionReject},
	{"/cancel", workflow.ActionCancel},
	{"/reopen", workflow.ActionReopen},
}

// RegisterDocumentRoutes registers editing, query and transition routes for documents.
// Mutating routes are authorized inside the domain services, where the
// document's attributes are known.
func RegisterDocumentRoutes(group *gin.RouterGroup, h *handlers.DocumentHandler, read gin.HandlerFunc) {
	group.GET("", read, h.List)
	group.POST("", h.Create)
	group.GET("/:id", read, h.Get)
	group.GET("/:id/history", read, h.History)
	group.POST("/:id/lines", h.AddLine)
	group.DELETE("/:id/lines/:lineId", h.RemoveLine)

	for _, r := range transitionRoutes {
		group.POST("/:id"+r.path, h.Transition(r.action))
	}
}
