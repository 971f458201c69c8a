package handlers

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/webhook"
)

// MaxWebhookBody caps the size of an inbound webhook payload
const MaxWebhookBody = 1 << 20

// Kafka header names carrying the webhook routing for consumed payloads
const (
	HeaderProvider  = "provider"
	HeaderWorkspace = "x-workspace-key"
)

// SecretReader looks up the stored webhook signing secret
type SecretReader interface {
	Get(ctx context.Context, key secrets.Key) (string, bool, error)
}

// RateLimiter limits webhook intake per (workspace, provider)
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

// WebhookLimits configures intake rate limiting. A zero Limit disables it.
type WebhookLimits struct {
	Limit  int64
	Window time.Duration
}

// WebhookHandler receives provider webhooks and moves events through their lifecycle
type WebhookHandler struct {
	engine     *engine.Engine
	secrets    SecretReader
	normalizer *webhook.Normalizer
	limiter    RateLimiter
	limits     WebhookLimits
	logger     ectologger.Logger
}

// NewWebhookHandler creates a webhook handler. limiter may be nil.
func NewWebhookHandler(
	e *engine.Engine,
	secretReader SecretReader,
	normalizer *webhook.Normalizer,
	limiter RateLimiter,
	limits WebhookLimits,
	logger ectologger.Logger,
) *WebhookHandler {
	if normalizer == nil {
		normalizer = webhook.NewNormalizer(nil)
	}
	return &WebhookHandler{
		engine:     e,
		secrets:    secretReader,
		normalizer: normalizer,
		limiter:    limiter,
		limits:     limits,
		logger:     logger,
	}
}

// IngestResponse reports how many webhook events were recorded
type IngestResponse struct {
	Received int `json:"received"`
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(g *echo.Group) {
	webhooks := g.Group("/webhooks")
	webhooks.GET("", h.List)
	webhooks.POST("/:provider", h.Receive)
	webhooks.POST("/:id/apply", h.Apply)
	webhooks.POST("/:id/ignore", h.Ignore)
}

// Receive handles POST /webhooks/:provider. The body is either line text or a
// provider JSON payload. When a webhook secret is stored for the pairing the
// X-Fern-Signature header must match.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "WebhookHandler.Receive")
	defer span.End()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}
	workspace := GetWorkspace(c)

	if err := h.allow(ctx, c, provider, workspace); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxWebhookBody+1))
	if err != nil {
		return BadRequest("failed to read request body")
	}
	if len(body) > MaxWebhookBody {
		return httperror.NewHTTPError(http.StatusRequestEntityTooLarge, "webhook payload too large")
	}

	received, err := h.ingest(ctx, provider, workspace, body, c.Request().Header.Get(webhook.SignatureHeader))
	if err != nil {
		return err
	}
	return AcceptedResponse(c, IngestResponse{Received: received})
}

// HandleMessage ingests a webhook payload consumed from Kafka. Routing comes
// from the provider and x-workspace-key headers.
func (h *WebhookHandler) HandleMessage(ctx context.Context, msg *kafka.ReceivedMessage) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookHandler.HandleMessage")
	defer span.End()

	provider, err := models.ParseProvider(msg.Header(HeaderProvider))
	if err != nil {
		return fmt.Errorf("message at offset %d: %w", msg.Offset, err)
	}
	workspace := strings.TrimSpace(msg.Header(HeaderWorkspace))
	if workspace == "" {
		workspace = appctx.DefaultWorkspace
	}
	ctx = appctx.SetWorkspaceKey(ctx, workspace)

	received, err := h.ingest(ctx, provider, workspace, msg.Value, msg.Header(webhook.SignatureHeader))
	if err != nil {
		return err
	}
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"provider":  provider,
		"workspace": workspace,
		"received":  received,
		"offset":    msg.Offset,
	}).Debug("ingested webhook message")
	return nil
}

func (h *WebhookHandler) allow(ctx context.Context, c echo.Context, provider models.Provider, workspace string) error {
	if h.limiter == nil || h.limits.Limit <= 0 {
		return nil
	}

	result, err := h.limiter.Allow(ctx, workspace+":"+string(provider), h.limits.Limit, h.limits.Window)
	if err != nil {
		// fail open: intake must not depend on redis being up
		h.logger.WithContext(ctx).WithError(err).Warn("webhook rate limit check failed")
		return nil
	}
	if result.Allowed {
		return nil
	}

	metrics.RecordRateLimitHit(string(provider))
	retryAfter := int(math.Ceil(result.RetryIn.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	return httperror.NewHTTPErrorf(http.StatusTooManyRequests, "webhook rate limit exceeded for %s", provider)
}

func (h *WebhookHandler) ingest(ctx context.Context, provider models.Provider, workspace string, body []byte, signature string) (int, error) {
	if err := h.verify(ctx, provider, workspace, body, signature); err != nil {
		return 0, err
	}

	raw := string(body)
	if webhook.IsJSON(body) {
		normalized, err := h.normalizer.Normalize(provider, body)
		if err != nil {
			return 0, BadRequest(err.Error())
		}
		raw = normalized
	}

	received, err := h.engine.Ingest(ctx, raw, provider, workspace)
	if err != nil {
		return 0, EngineError(err)
	}
	return received, nil
}

func (h *WebhookHandler) verify(ctx context.Context, provider models.Provider, workspace string, body []byte, signature string) error {
	if h.secrets == nil {
		return nil
	}

	secret, ok, err := h.secrets.Get(ctx, secrets.NewKey(workspace, provider, models.SecretWebhookSecret))
	if err != nil {
		return fmt.Errorf("failed to read webhook secret: %w", err)
	}
	if !ok {
		return nil
	}
	if signature == "" {
		return Unauthorized("missing " + webhook.SignatureHeader + " header")
	}
	if !webhook.VerifySignature(secret, body, signature) {
		metrics.RecordWebhookEvent(string(provider), "rejected")
		return Unauthorized("invalid webhook signature")
	}
	return nil
}

// List handles GET /webhooks
func (h *WebhookHandler) List(c echo.Context) error {
	return SuccessResponse(c, newListResponse(h.engine.WebhookEvents(GetWorkspace(c))))
}

// Apply handles POST /webhooks/:id/apply
func (h *WebhookHandler) Apply(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	event, err := h.engine.ApplyWebhookEvent(c.Request().Context(), id)
	if err != nil {
		return EngineError(err)
	}
	return SuccessResponse(c, event)
}

// Ignore handles POST /webhooks/:id/ignore
func (h *WebhookHandler) Ignore(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	event, err := h.engine.IgnoreWebhookEvent(c.Request().Context(), id)
	if err != nil {
		return EngineError(err)
	}
	return SuccessResponse(c, event)
}
