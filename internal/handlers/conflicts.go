package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ConflictHandler lists and resolves conflicts
type ConflictHandler struct {
	engine *engine.Engine
}

func NewConflictHandler(e *engine.Engine) *ConflictHandler {
	return &ConflictHandler{engine: e}
}

// ResolveConflictRequest is the request body for POST /conflicts/:id/resolve
type ResolveConflictRequest struct {
	Resolution models.ConflictStatus `json:"resolution" validate:"required"`
}

// RegisterRoutes registers the conflict routes
func (h *ConflictHandler) RegisterRoutes(g *echo.Group) {
	conflicts := g.Group("/conflicts")
	conflicts.GET("", h.List)
	conflicts.POST("/:id/resolve", h.Resolve)
}

// List handles GET /conflicts?status=
func (h *ConflictHandler) List(c echo.Context) error {
	status := models.ConflictStatus(c.QueryParam("status"))
	switch status {
	case "", models.ConflictUnresolved, models.ConflictKeepLocal, models.ConflictAcceptRemote:
	default:
		return BadRequest("invalid status: must be unresolved, keep_local or accept_remote")
	}
	return SuccessResponse(c, newListResponse(h.engine.Conflicts(GetWorkspace(c), status)))
}

// Resolve handles POST /conflicts/:id/resolve
func (h *ConflictHandler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConflictHandler.Resolve")
	defer span.End()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req ResolveConflictRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	conflict, err := h.engine.ResolveConflict(ctx, id, req.Resolution)
	if err != nil {
		return EngineError(err)
	}
	return SuccessResponse(c, conflict)
}
