// Package http assembles the chatd HTTP server.
package http

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xiaot623/chatd/internal/config"
	"github.com/xiaot623/chatd/internal/service"
	v1 "github.com/xiaot623/chatd/internal/transport/http/v1"
	"github.com/xiaot623/chatd/internal/transport/ws"
)

// NewServer creates the public HTTP server: the REST and SSE API plus the
// WebSocket chat endpoint.
func NewServer(cfg *config.Config, svc *service.Service, hub *ws.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Debug = strings.EqualFold(cfg.LogLevel, "debug")

	// Middleware
	if !strings.EqualFold(cfg.LogLevel, "error") {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, cfg.MockMode())
	wsServer := ws.NewServer(cfg, hub, svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	wsServer.RegisterRoutes(e)

	return e
}
