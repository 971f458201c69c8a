package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ConnectionHandler handles credential and connection requests
type ConnectionHandler struct {
	engine *engine.Engine
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(e *engine.Engine) *ConnectionHandler {
	return &ConnectionHandler{engine: e}
}

// SaveConnectionRequest is the request body for PUT /connections/:provider.
// An omitted access token keeps the stored one.
type SaveConnectionRequest struct {
	AccountLabel  string `json:"account_label" validate:"required"`
	AccessToken   string `json:"access_token,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// RegisterRoutes registers the connection routes
func (h *ConnectionHandler) RegisterRoutes(g *echo.Group) {
	connections := g.Group("/connections")
	connections.GET("", h.List)
	connections.GET("/:provider", h.Get)
	connections.PUT("/:provider", h.Save)
	connections.POST("/:provider/refresh", h.Refresh)
	connections.DELETE("/:provider", h.Disconnect)
}

// List handles GET /connections
func (h *ConnectionHandler) List(c echo.Context) error {
	return SuccessResponse(c, newListResponse(h.engine.Connections(GetWorkspace(c))))
}

// Get handles GET /connections/:provider
func (h *ConnectionHandler) Get(c echo.Context) error {
	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}

	conn, ok := h.engine.Connection(provider, GetWorkspace(c))
	if !ok {
		return NotFound("connection not found")
	}
	return SuccessResponse(c, conn)
}

// Save handles PUT /connections/:provider
func (h *ConnectionHandler) Save(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConnectionHandler.Save")
	defer span.End()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}

	var req SaveConnectionRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	conn, err := h.engine.SaveCredentials(ctx, engine.SaveCredentialsInput{
		Provider:      provider,
		Workspace:     GetWorkspace(c),
		AccountLabel:  req.AccountLabel,
		AccessToken:   req.AccessToken,
		RefreshToken:  req.RefreshToken,
		WebhookSecret: req.WebhookSecret,
	})
	if err != nil {
		return EngineError(err)
	}
	return SuccessResponse(c, conn)
}

// Refresh handles POST /connections/:provider/refresh
func (h *ConnectionHandler) Refresh(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConnectionHandler.Refresh")
	defer span.End()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}

	workspace := GetWorkspace(c)
	if _, err := h.engine.Refresh(ctx, provider, workspace); err != nil {
		return EngineError(err)
	}

	conn, _ := h.engine.Connection(provider, workspace)
	return SuccessResponse(c, conn)
}

// Disconnect handles DELETE /connections/:provider
func (h *ConnectionHandler) Disconnect(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConnectionHandler.Disconnect")
	defer span.End()

	provider, err := ParseProvider(c)
	if err != nil {
		return err
	}

	removed, err := h.engine.Disconnect(ctx, provider, GetWorkspace(c))
	if err != nil {
		return EngineError(err)
	}
	if !removed {
		return NotFound("connection not found")
	}
	return NoContentResponse(c)
}
