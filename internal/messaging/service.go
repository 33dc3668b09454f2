package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/deckcrm/internal/store"
)

// Options carries the sender identities and delivery limits.
type Options struct {
	EmailFrom   string
	SMSFrom     string
	SendTimeout time.Duration
	BatchSize   int
}

// Service sends, schedules and records customer communications.
type Service struct {
	store   store.Queries
	email   EmailSender
	sms     SMSSender
	opts    Options
	logger  *slog.Logger
	nowFunc func() time.Time
}

func NewService(log *slog.Logger, st store.Queries, email EmailSender, sms SMSSender, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Service{
		store:   st,
		email:   email,
		sms:     sms,
		opts:    opts,
		logger:  log.With(slog.String("service", "messaging")),
		nowFunc: time.Now,
	}
}

func (s *Service) now() time.Time {
	return s.nowFunc().UTC()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func parseChannel(raw store.Channel) (store.Channel, error) {
	channel := store.Channel(strings.ToLower(strings.TrimSpace(string(raw))))
	if channel.Table() == "" {
		return "", invalid("type must be email or sms")
	}
	return channel, nil
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// Send delivers a message now, or stores it as scheduled when ScheduledTime is in the
// future. A delivery failure is stored with status failed and returned as ErrDeliveryFailed
// together with the stored row.
func (s *Service) Send(ctx context.Context, req SendRequest) (store.Message, error) {
	channel, err := parseChannel(req.Type)
	if err != nil {
		return store.Message{}, err
	}
	customerID, err := store.NormalizeID(req.CustomerID)
	if err != nil {
		return store.Message{}, invalid("customer_id is required")
	}
	body := strings.TrimSpace(req.Message)
	if body == "" {
		return store.Message{}, invalid("message is required")
	}
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return store.Message{}, err
	}

	msg := store.Message{
		Channel:    channel,
		CustomerID: customer.ID,
		Direction:  store.DirectionOutbound,
		Body:       body,
	}
	switch channel {
	case store.ChannelEmail:
		if !nonEmpty(customer.Email) {
			return store.Message{}, ErrNoRecipient
		}
		subject := "(no subject)"
		if nonEmpty(req.Subject) {
			subject = strings.TrimSpace(*req.Subject)
		}
		msg.Subject = &subject
		msg.To = customer.Email
		from := s.opts.EmailFrom
		msg.From = &from
	case store.ChannelSMS:
		if !nonEmpty(customer.Phone) {
			return store.Message{}, ErrNoRecipient
		}
		msg.To = customer.Phone
		from := s.opts.SMSFrom
		msg.From = &from
	}

	if nonEmpty(req.ReplyToID) {
		parent, err := s.store.GetMessage(ctx, channel, *req.ReplyToID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
				return store.Message{}, invalid("reply_to_id does not match a %s message", channel)
			}
			return store.Message{}, err
		}
		if parent.CustomerID != customer.ID {
			return store.Message{}, invalid("reply_to_id belongs to another customer")
		}
		msg.ReplyToID = &parent.ID
	}

	if req.ScheduledTime != nil && req.ScheduledTime.After(s.now()) {
		when := req.ScheduledTime.UTC()
		msg.Status = store.StatusScheduled
		msg.ScheduledFor = &when
		stored, err := s.store.InsertMessage(ctx, msg)
		if err != nil {
			return store.Message{}, err
		}
		s.logger.Info("message scheduled",
			slog.String("channel", string(channel)),
			slog.String("message_id", stored.ID),
			slog.Time("scheduled_for", when))
		return stored, nil
	}

	providerID, sendErr := s.deliver(ctx, msg)
	msg.Status = store.StatusSent
	if providerID != "" {
		msg.ProviderID = &providerID
	}
	if sendErr != nil {
		msg.Status = store.StatusFailed
		reason := sendErr.Error()
		msg.Error = &reason
	}
	stored, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		return store.Message{}, err
	}
	if sendErr != nil {
		return stored, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}
	return stored, nil
}

// deliver hands msg to the provider for its channel.
func (s *Service) deliver(ctx context.Context, msg store.Message) (string, error) {
	if s.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SendTimeout)
		defer cancel()
	}
	to := ""
	if msg.To != nil {
		to = *msg.To
	}
	from := ""
	if msg.From != nil {
		from = *msg.From
	}
	switch msg.Channel {
	case store.ChannelEmail:
		if s.email == nil {
			return "", ErrSenderUnavailable
		}
		email := Email{From: from, To: to, Body: msg.Body}
		if msg.Subject != nil {
			email.Subject = *msg.Subject
		}
		if msg.ReplyToID != nil {
			parent, err := s.store.GetMessage(ctx, store.ChannelEmail, *msg.ReplyToID)
			if err == nil && parent.ProviderID != nil {
				email.InReplyTo = *parent.ProviderID
			}
		}
		return s.email.SendEmail(ctx, email)
	case store.ChannelSMS:
		if s.sms == nil {
			return "", ErrSenderUnavailable
		}
		return s.sms.SendSMS(ctx, from, to, msg.Body)
	default:
		return "", ErrSenderUnavailable
	}
}

// Cancel removes a message that is still scheduled. Messages already picked up by the
// dispatcher or sent return ErrNotCancellable.
func (s *Service) Cancel(ctx context.Context, channel store.Channel, id string) error {
	channel, err := parseChannel(channel)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteScheduledMessage(ctx, channel, id)
	if err != nil {
		return err
	}
	if deleted {
		s.logger.Info("scheduled message cancelled", slog.String("channel", string(channel)), slog.String("message_id", id))
		return nil
	}
	if _, err := s.store.GetMessage(ctx, channel, id); err != nil {
		return err
	}
	return ErrNotCancellable
}

// DispatchDue sends every scheduled message due at or before now, up to the batch size
// per channel.
func (s *Service) DispatchDue(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult
	now := s.now()
	for _, channel := range []store.Channel{store.ChannelEmail, store.ChannelSMS} {
		due, err := s.store.ListDueMessages(ctx, channel, now, s.opts.BatchSize)
		if err != nil {
			return result, err
		}
		for _, pending := range due {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			msg, claimed, err := s.store.ClaimScheduledMessage(ctx, channel, pending.ID)
			if err != nil {
				return result, err
			}
			if !claimed {
				result.Skipped++
				continue
			}
			update := store.MessageStatusUpdate{Status: store.StatusSent}
			providerID, sendErr := s.deliver(ctx, msg)
			if providerID != "" {
				update.ProviderID = &providerID
			}
			if sendErr != nil {
				update.Status = store.StatusFailed
				reason := sendErr.Error()
				update.Error = &reason
				result.Failed++
				s.logger.Warn("scheduled send failed",
					slog.String("channel", string(channel)),
					slog.String("message_id", msg.ID),
					slog.Any("error", sendErr))
			} else {
				result.Sent++
			}
			if _, err := s.store.UpdateMessageStatus(ctx, channel, msg.ID, update); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// ReceiveSMS stores an inbound text, matched to a customer by phone number.
func (s *Service) ReceiveSMS(ctx context.Context, in InboundSMS) (store.Message, error) {
	if strings.TrimSpace(in.From) == "" {
		return store.Message{}, invalid("sender number is required")
	}
	customer, err := s.store.FindCustomerByPhone(ctx, in.From)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Message{}, ErrUnknownSender
		}
		return store.Message{}, err
	}
	from, to := in.From, in.To
	msg := store.Message{
		Channel:    store.ChannelSMS,
		CustomerID: customer.ID,
		Direction:  store.DirectionInbound,
		Body:       in.Body,
		From:       &from,
		To:         &to,
		Status:     store.StatusReceived,
	}
	if in.ProviderID != "" {
		providerID := in.ProviderID
		msg.ProviderID = &providerID
	}
	return s.store.InsertMessage(ctx, msg)
}

// LogCall records a phone call against a customer.
func (s *Service) LogCall(ctx context.Context, req CallRequest) (store.Call, error) {
	customerID, err := store.NormalizeID(req.CustomerID)
	if err != nil {
		return store.Call{}, invalid("customer_id is required")
	}
	direction := strings.ToLower(strings.TrimSpace(req.Direction))
	if direction != store.DirectionInbound && direction != store.DirectionOutbound {
		return store.Call{}, invalid("direction must be inbound or outbound")
	}
	if req.DurationSeconds < 0 {
		return store.Call{}, invalid("duration_seconds must not be negative")
	}
	call := store.Call{
		CustomerID:      customerID,
		Direction:       direction,
		FromNumber:      req.FromNumber,
		ToNumber:        req.ToNumber,
		DurationSeconds: req.DurationSeconds,
		Outcome:         req.Outcome,
		Notes:           req.Notes,
	}
	if req.OccurredAt != nil {
		call.CreatedAt = req.OccurredAt.UTC()
	}
	stored, err := s.store.InsertCall(ctx, call)
	if errors.Is(err, store.ErrMissingReference) {
		return store.Call{}, store.ErrNotFound
	}
	return stored, err
}

func (s *Service) List(ctx context.Context, channel store.Channel, filter store.ListFilter) ([]store.Message, error) {
	channel, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, channel, filter)
}

func (s *Service) ListCalls(ctx context.Context, filter store.ListFilter) ([]store.Call, error) {
	return s.store.ListCalls(ctx, filter)
}
