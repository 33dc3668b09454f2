package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/version"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PingHandler serves /ping, /version and HEAD /health.
type PingHandler struct {
	db     HealthChecker
	logger *slog.Logger
}

// NewPingHandler creates a ping handler. db may be nil, in which case /health only reports
// that the process is up.
func NewPingHandler(log *slog.Logger, db HealthChecker) *PingHandler {
	return &PingHandler{db: db, logger: log.With(slog.String("handler", "ping"))}
}

// Register mounts the liveness routes on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/version", h.Version)
}

// Ping returns 200 JSON {"status":"ok"}.
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// PingHead returns 200 when the database answers, 503 otherwise.
func (h *PingHandler) PingHead(c echo.Context) error {
	if h.db != nil {
		if err := h.db.Ping(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", slog.Any("error", err))
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}

func (h *PingHandler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Current())
}
