package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/monitoring"
	"github.com/memohai/deckcrm/internal/server"
	"github.com/memohai/deckcrm/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServer,
	),
	fx.Invoke(startServer, startDispatcher),
)

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	Metrics        *monitoring.Metrics
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server, params.Metrics, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting deckcrm %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// startDispatcher runs scheduled sends for the lifetime of the app. Passes get their own
// context since the start hook context ends once startup is done.
func startDispatcher(lc fx.Lifecycle, dispatcher *messaging.Dispatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return dispatcher.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return dispatcher.Stop(stopCtx)
		},
	})
}
