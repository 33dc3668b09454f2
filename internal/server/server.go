// Package server provides the HTTP server and Echo setup for the CRM API.
package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/deckcrm/internal/config"
)

// Server is the HTTP server (Echo) with registered handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// RequestObserver records finished requests.
type RequestObserver interface {
	ObserveRequest(method, route string, status int)
}

// streaming reports whether the request holds its connection open and must not be cut by
// the request timeout.
func streaming(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasPrefix(path, "/timeline/events") || strings.HasPrefix(path, "/timeline/ws")
}

// requestTimeout bounds the request context. Handlers see context.DeadlineExceeded from the
// store once it expires.
func requestTimeout(timeout time.Duration, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || skip(c) {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// NewServer builds the Echo server with recovery, request logging, request timeouts and the
// given handlers. observer may be nil.
func NewServer(log *slog.Logger, cfg config.ServerConfig, observer RequestObserver,
	handlers ...Handler,
) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			if observer != nil {
				observer.ObserveRequest(v.Method, c.Path(), v.Status)
			}
			return nil
		},
	}))
	e.Use(requestTimeout(cfg.RequestTimeout.Duration, streaming))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
