package handlers

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/ledger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LedgerHandler records ledger events, pushes them to providers and exports them
type LedgerHandler struct {
	engine *engine.Engine
	logger ectologger.Logger
}

func NewLedgerHandler(e *engine.Engine, logger ectologger.Logger) *LedgerHandler {
	return &LedgerHandler{engine: e, logger: logger}
}

// RecordLedgerEventRequest is the request body for POST /ledger/events
type RecordLedgerEventRequest struct {
	EventType      models.LedgerEventType `json:"event_type" validate:"required"`
	Source         string                 `json:"source"`
	Reason         string                 `json:"reason"`
	ItemID         string                 `json:"item_id" validate:"required"`
	ItemName       string                 `json:"item_name"`
	Category       string                 `json:"category"`
	Location       string                 `json:"location"`
	DeltaUnits     int                    `json:"delta_units"`
	ResultingUnits int                    `json:"resulting_units"`
	CorrelationID  string                 `json:"correlation_id"`
}

// RegisterRoutes registers the ledger routes
func (h *LedgerHandler) RegisterRoutes(g *echo.Group) {
	l := g.Group("/ledger")
	l.GET("/events", h.List)
	l.POST("/events", h.Record)
	l.POST("/sync", h.Sync)
	l.GET("/export", h.Export)
}

// List handles GET /ledger/events
func (h *LedgerHandler) List(c echo.Context) error {
	return SuccessResponse(c, newListResponse(h.engine.LedgerEvents(GetWorkspace(c))))
}

// Record handles POST /ledger/events
func (h *LedgerHandler) Record(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "LedgerHandler.Record")
	defer span.End()

	var req RecordLedgerEventRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	event, err := h.engine.RecordLedgerEvent(ctx, engine.LedgerEventInput{
		Workspace:      GetWorkspace(c),
		EventType:      req.EventType,
		Source:         req.Source,
		Reason:         req.Reason,
		ItemID:         req.ItemID,
		ItemName:       req.ItemName,
		Category:       req.Category,
		Location:       req.Location,
		DeltaUnits:     req.DeltaUnits,
		ResultingUnits: req.ResultingUnits,
		CorrelationID:  req.CorrelationID,
	})
	if err != nil {
		return EngineError(err)
	}
	return c.JSON(http.StatusCreated, event)
}

// Sync handles POST /ledger/sync?max=
func (h *LedgerHandler) Sync(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "LedgerHandler.Sync")
	defer span.End()

	limit, err := ParseLimit(c, "max", engine.DefaultLedgerBatch)
	if err != nil {
		return err
	}
	return SuccessResponse(c, h.engine.SyncLedger(ctx, GetWorkspace(c), limit))
}

// Export handles GET /ledger/export and streams the workspace ledger as CSV
func (h *LedgerHandler) Export(c echo.Context) error {
	ctx := c.Request().Context()
	workspace := GetWorkspace(c)
	events := h.engine.LedgerEvents(workspace)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "ledger-"+workspace+".csv"))
	res.WriteHeader(http.StatusOK)

	if err := ledger.WriteCSV(res, events); err != nil {
		// headers are already sent; the client sees a truncated file
		h.logger.WithContext(ctx).WithError(err).Error("failed to write ledger export")
		return nil
	}
	return nil
}
