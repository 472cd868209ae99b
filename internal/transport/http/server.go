// Package http provides the development backend HTTP server.
package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/livesession/internal/hub"
	"github.com/xiaot623/gogo/livesession/internal/transport/http/devapi"
)

// Server is the development backend: an echo server plus the hub that
// feeds its streams.
type Server struct {
	echo    *echo.Echo
	hub     *hub.Hub
	handler *devapi.Handler
	cancel  context.CancelFunc
}

// NewServer creates the server and starts its hub. stepDelay paces the
// scripted agent.
func NewServer(stepDelay time.Duration) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	handler := devapi.NewHandler(h, stepDelay)
	handler.RegisterRoutes(e)

	return &Server{echo: e, hub: h, handler: handler, cancel: cancel}
}

// Handler exposes the echo instance, e.g. for httptest servers.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains running scripts, stops the server and then the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.handler.Shutdown(ctx)
	err := s.echo.Shutdown(ctx)
	s.cancel()
	return err
}
