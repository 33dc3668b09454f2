package modules

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/handlers"
	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/monitoring"
	"github.com/memohai/deckcrm/internal/server"
	"github.com/memohai/deckcrm/internal/timeline"
)

var HandlersModule = fx.Module(
	"handlers",
	fx.Provide(
		// Custom handlers with provide functions
		annotateHandler(providePingHandler),
		annotateHandler(provideTimelineHandler),
		annotateHandler(provideMessageHandler),
		annotateHandler(provideWebhookHandler),

		// Simple handlers from handlers package
		annotateHandler(handlers.NewMetricsHandler),
		annotateHandler(handlers.NewCustomersHandler),
		annotateHandler(handlers.NewLeadsHandler),
		annotateHandler(handlers.NewBillingHandler),
	),
)

// annotateHandler wraps a handler provider function with fx.Annotate
// to register it as a server.Handler with the correct group tag
func annotateHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

// ---------------------------------------------------------------------------
// handler providers (interface adaptation / config extraction)
// ---------------------------------------------------------------------------

func providePingHandler(log *slog.Logger, pool *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, pool)
}

func provideTimelineHandler(log *slog.Logger, aggregator *timeline.Aggregator, metrics *monitoring.Metrics, cfg config.Config) *handlers.TimelineHandler {
	h := handlers.NewTimelineHandler(log, aggregator, cfg.Timeline)
	h.SetStreamObserver(metrics)
	return h
}

func provideMessageHandler(log *slog.Logger, svc *messaging.Service, dispatcher *messaging.Dispatcher) *handlers.MessageHandler {
	h := handlers.NewMessageHandler(log, svc)
	h.SetDispatcher(dispatcher)
	return h
}

// provideWebhookHandler checks Twilio signatures whenever an auth token is configured.
func provideWebhookHandler(log *slog.Logger, svc *messaging.Service, cfg config.Config) *handlers.WebhookHandler {
	var verifier handlers.SignatureVerifier
	if cfg.Twilio.AuthToken != "" {
		verifier = messaging.NewSignatureValidator(cfg.Twilio.AuthToken)
	} else {
		log.Warn("twilio auth token missing; webhook signatures are not checked")
	}
	return handlers.NewWebhookHandler(log, svc, verifier)
}
