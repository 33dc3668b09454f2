package messaging

import (
	"errors"
	"time"

	"github.com/memohai/deckcrm/internal/store"
)

var (
	ErrInvalidRequest    = errors.New("invalid message request")
	ErrNoRecipient       = errors.New("customer has no address for this channel")
	ErrNotCancellable    = errors.New("message is no longer scheduled")
	ErrSenderUnavailable = errors.New("no sender configured for channel")
	ErrUnknownSender     = errors.New("no customer matches the sender")
	ErrDeliveryFailed    = errors.New("message delivery failed")
)

// SendRequest is the payload of the send-message endpoint.
type SendRequest struct {
	CustomerID    string        `json:"customer_id"`
	Type          store.Channel `json:"type"`
	Subject       *string       `json:"subject,omitempty"`
	Message       string        `json:"message"`
	ReplyToID     *string       `json:"reply_to_id,omitempty"`
	ScheduledTime *time.Time    `json:"scheduled_time,omitempty"`
}

// InboundSMS is a message received by the SMS provider.
type InboundSMS struct {
	From       string
	To         string
	Body       string
	ProviderID string
}

type CallRequest struct {
	CustomerID      string     `json:"customer_id"`
	Direction       string     `json:"direction"`
	FromNumber      *string    `json:"from_number,omitempty"`
	ToNumber        *string    `json:"to_number,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Outcome         *string    `json:"outcome,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	OccurredAt      *time.Time `json:"occurred_at,omitempty"`
}

// DispatchResult summarizes one pass over due scheduled messages.
type DispatchResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
