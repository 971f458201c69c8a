package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RetryHandler lists retry jobs and processes the due ones on demand
type RetryHandler struct {
	engine *engine.Engine
}

func NewRetryHandler(e *engine.Engine) *RetryHandler {
	return &RetryHandler{engine: e}
}

// RegisterRoutes registers the retry routes
func (h *RetryHandler) RegisterRoutes(g *echo.Group) {
	retries := g.Group("/retries")
	retries.GET("", h.List)
	retries.POST("/process", h.Process)
}

// List handles GET /retries
func (h *RetryHandler) List(c echo.Context) error {
	return SuccessResponse(c, newListResponse(h.engine.RetryJobs(GetWorkspace(c))))
}

// Process handles POST /retries/process?max=
func (h *RetryHandler) Process(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RetryHandler.Process")
	defer span.End()

	limit, err := ParseLimit(c, "max", engine.DefaultRetryBatch)
	if err != nil {
		return err
	}
	return SuccessResponse(c, h.engine.ProcessDueRetries(ctx, GetWorkspace(c), limit))
}
