package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// DeadLetters is the Redis stream abandoned retry jobs are mirrored to
type DeadLetters interface {
	ListByWorkspace(ctx context.Context, workspace string, count int64) ([]redis.DLQEntry, error)
	Delete(ctx context.Context, messageID string) error
	Count(ctx context.Context) (int64, error)
}

// DLQHandler exposes abandoned retry jobs. Without Redis it answers from the
// engine's own retry history.
type DLQHandler struct {
	dlq    DeadLetters
	engine *engine.Engine
	logger ectologger.Logger
}

// NewDLQHandler creates a new DLQ handler. dlq may be nil.
func NewDLQHandler(dlq DeadLetters, e *engine.Engine, logger ectologger.Logger) *DLQHandler {
	return &DLQHandler{
		dlq:    dlq,
		engine: e,
		logger: logger,
	}
}

// DLQListResponse represents the response for listing abandoned retries
type DLQListResponse struct {
	Source  string           `json:"source"`
	Entries []redis.DLQEntry `json:"entries"`
	Count   int              `json:"count"`
	Total   int64            `json:"total"`
}

// List returns abandoned retry jobs, newest first
// GET /api/v1/retries/abandoned
func (h *DLQHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	workspace := GetWorkspace(c)

	countStr := c.QueryParam("count")
	count := int64(100)
	if countStr != "" {
		if parsed, err := strconv.ParseInt(countStr, 10, 64); err == nil && parsed > 0 {
			count = parsed
		}
	}

	if h.dlq == nil {
		entries := h.fromEngine(workspace, count)
		return c.JSON(http.StatusOK, DLQListResponse{
			Source:  "engine",
			Entries: entries,
			Count:   len(entries),
			Total:   int64(len(entries)),
		})
	}

	entries, err := h.dlq.ListByWorkspace(ctx, workspace, count)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list DLQ entries")
		return err
	}
	if entries == nil {
		entries = []redis.DLQEntry{}
	}

	total, _ := h.dlq.Count(ctx)

	return c.JSON(http.StatusOK, DLQListResponse{
		Source:  "redis",
		Entries: entries,
		Count:   len(entries),
		Total:   total,
	})
}

func (h *DLQHandler) fromEngine(workspace string, count int64) []redis.DLQEntry {
	entries := []redis.DLQEntry{}
	for _, job := range h.engine.RetryJobs(workspace) {
		if job.Status != models.SyncRetryStatusAbandoned {
			continue
		}
		entries = append(entries, redis.DLQEntry{
			ID:           job.ID.String(),
			RetryJobID:   job.ID.String(),
			Workspace:    job.Workspace,
			Provider:     job.Provider,
			AttemptCount: job.AttemptCount,
			MaxAttempts:  job.MaxAttempts,
			LastError:    job.LastError,
			AbandonedAt:  job.UpdatedAt,
		})
		if int64(len(entries)) >= count {
			break
		}
	}
	return entries
}

// Delete removes a DLQ entry
// DELETE /api/v1/retries/abandoned/:id
func (h *DLQHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	if h.dlq == nil {
		return NotFound("dead letter stream is not configured")
	}
	messageID := c.Param("id")

	if err := h.dlq.Delete(ctx, messageID); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to delete DLQ entry")
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Stats returns DLQ statistics
// GET /api/v1/retries/abandoned/stats
func (h *DLQHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	if h.dlq == nil {
		return c.JSON(http.StatusOK, map[string]int64{
			"total_entries": int64(len(h.fromEngine(GetWorkspace(c), math.MaxInt64))),
		})
	}

	count, err := h.dlq.Count(ctx)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to get DLQ stats")
		return err
	}

	return c.JSON(http.StatusOK, map[string]int64{
		"total_entries": count,
	})
}

// RegisterRoutes registers the DLQ routes
func (h *DLQHandler) RegisterRoutes(g *echo.Group) {
	dlq := g.Group("/retries/abandoned")
	dlq.GET("", h.List)
	dlq.GET("/stats", h.Stats)
	dlq.DELETE("/:id", h.Delete)
}
