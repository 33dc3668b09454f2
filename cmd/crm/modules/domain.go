package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/deckcrm/internal/billing"
	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/customers"
	"github.com/memohai/deckcrm/internal/leads"
	"github.com/memohai/deckcrm/internal/merge"
	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/monitoring"
	"github.com/memohai/deckcrm/internal/queue"
	"github.com/memohai/deckcrm/internal/realtime"
	"github.com/memohai/deckcrm/internal/store"
	"github.com/memohai/deckcrm/internal/timeline"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		customers.NewService,
		leads.NewService,
		billing.NewService,

		provideMergeService,
		provideAggregator,
		provideEmailSender,
		provideSMSSender,
		provideMessagingService,
		provideDispatcher,
	),
)

// ---------------------------------------------------------------------------
// domain service providers
// ---------------------------------------------------------------------------

func provideMergeService(log *slog.Logger, st store.Store, metrics *monitoring.Metrics, publisher *queue.Publisher) *merge.Service {
	svc := merge.NewService(log, st)
	svc.SetObserver(metrics)
	if publisher != nil {
		svc.SetNotifier(queue.NewMergeNotifier(publisher))
	}
	return svc
}

func provideAggregator(log *slog.Logger, st store.Queries, sub realtime.Subscriber, cfg config.Config) *timeline.Aggregator {
	return timeline.NewAggregator(log, st, sub, cfg.Timeline)
}

// provideEmailSender picks the configured provider. It returns nil without one, and sends
// then fail with ErrSenderUnavailable.
func provideEmailSender(log *slog.Logger, cfg config.Config) messaging.EmailSender {
	var sender messaging.EmailSender
	switch cfg.Mail.Provider {
	case "smtp":
		sender = messaging.NewSMTPSender(cfg.Mail.SMTP)
	case "mailgun":
		sender = messaging.NewMailgunSender(cfg.Mail.Mailgun)
	case "":
		log.Warn("no mail provider configured")
		return nil
	default:
		log.Warn("unknown mail provider", slog.String("provider", cfg.Mail.Provider))
		return nil
	}
	return messaging.LimitEmail(sender, cfg.Mail.RatePerSecond, 1)
}

func provideSMSSender(log *slog.Logger, cfg config.Config) messaging.SMSSender {
	if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
		log.Warn("twilio not configured")
		return nil
	}
	return messaging.LimitSMS(messaging.NewTwilioSender(cfg.Twilio), cfg.Twilio.RatePerSecond, 1)
}

func provideMessagingService(log *slog.Logger, st store.Queries, email messaging.EmailSender, sms messaging.SMSSender, cfg config.Config) *messaging.Service {
	return messaging.NewService(log, st, email, sms, messaging.Options{
		EmailFrom:   cfg.Mail.From,
		SMSFrom:     cfg.Twilio.FromNumber,
		SendTimeout: cfg.Messaging.SendTimeout.Duration,
		BatchSize:   cfg.Messaging.BatchSize,
	})
}

func provideDispatcher(log *slog.Logger, svc *messaging.Service, metrics *monitoring.Metrics, cfg config.Config) (*messaging.Dispatcher, error) {
	d, err := messaging.NewDispatcher(log, svc, cfg.Messaging.DispatchSpec)
	if err != nil {
		return nil, err
	}
	d.SetObserver(metrics)
	return d, nil
}
