package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

const (
	// HeaderWorkspaceKey is the header key for the workspace
	HeaderWorkspaceKey = "X-Workspace-Key"
	// HeaderActor is the header key naming the caller when authentication is off
	HeaderActor = "X-Actor"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			workspace := strings.TrimSpace(req.Header.Get(HeaderWorkspaceKey))
			if workspace == "" {
				workspace = context.DefaultWorkspace
			}

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetWorkspaceKey(ctx, workspace)
			if actor := strings.TrimSpace(req.Header.Get(HeaderActor)); actor != "" {
				ctx = context.SetActor(ctx, actor)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
