package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SyncHandler runs sync passes and lists their jobs
type SyncHandler struct {
	engine *engine.Engine
}

func NewSyncHandler(e *engine.Engine) *SyncHandler {
	return &SyncHandler{engine: e}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(g *echo.Group) {
	sync := g.Group("/sync")
	sync.GET("/jobs", h.Jobs)
	sync.POST("/:provider", h.Run)
}

// Run handles POST /sync/:provider. A blocked pass is still a recorded job,
// so it answers 200 with a failed job rather than an error.
func (h *SyncHandler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.Run")
	defer span.End()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}

	job, err := h.engine.SyncWorkspace(ctx, provider, GetWorkspace(c))
	if err != nil {
		return EngineError(err)
	}
	return SuccessResponse(c, job)
}

// Jobs handles GET /sync/jobs
func (h *SyncHandler) Jobs(c echo.Context) error {
	return SuccessResponse(c, newListResponse(h.engine.SyncJobs(GetWorkspace(c))))
}
