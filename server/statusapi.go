package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StatusAPI is the optional ambient HTTP status surface (§6.2): read-only
// visibility into the session for operators, grounded on the teacher's
// APIServer but pared down to what a LAN relay needs — it never mutates
// core state and is never part of the wire protocol.
type StatusAPI struct {
	registry *Registry
	metrics  *Metrics
	echo     *echo.Echo
}

// NewStatusAPI constructs the status server and registers its routes.
func NewStatusAPI(registry *Registry, metrics *Metrics) *StatusAPI {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &StatusAPI{registry: registry, metrics: metrics, echo: e}
	e.GET("/healthz", s.handleHealth)
	e.GET("/roster", s.handleRoster)
	e.GET("/metrics", s.handleMetrics)
	return s
}

// Run starts the status server on addr and blocks until ctx is cancelled.
func (s *StatusAPI) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("statusapi: server error", "err", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		slog.Warn("statusapi: shutdown error", "err", err)
	}
}

func (s *StatusAPI) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"participants": s.registry.Count(),
	})
}

func (s *StatusAPI) handleRoster(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Snapshot())
}

func (s *StatusAPI) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.metrics.Snapshot())
}
