package handlers

import "github.com/labstack/echo/v4"

// APIPrefix is the group every engine route is registered under
const APIPrefix = "/api/v1"

// RouteRegistrar is implemented by every handler in this package
type RouteRegistrar interface {
	RegisterRoutes(g *echo.Group)
}

// Register mounts the handlers under g
func Register(g *echo.Group, registrars ...RouteRegistrar) {
	for _, r := range registrars {
		r.RegisterRoutes(g)
	}
}
