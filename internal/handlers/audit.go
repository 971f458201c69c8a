package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
)

type AuditHandler struct {
	engine *engine.Engine
}

func NewAuditHandler(e *engine.Engine) *AuditHandler {
	return &AuditHandler{engine: e}
}

func (h *AuditHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit", h.List)
}

// List handles GET /audit
func (h *AuditHandler) List(c echo.Context) error {
	return SuccessResponse(c, newListResponse(h.engine.AuditEvents(GetWorkspace(c))))
}
