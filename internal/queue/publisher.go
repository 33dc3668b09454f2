// Package queue publishes domain events to a RabbitMQ topic exchange.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/merge"
)

const RoutingCustomerMerged = "customer.merged"

var ErrClosed = errors.New("publisher closed")

// Publisher holds one broker connection, reopened on the next publish after a failure.
type Publisher struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewPublisher(log *slog.Logger, cfg config.RabbitMQConfig) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		logger:   log.With(slog.String("service", "queue")),
	}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Publish sends payload as persistent JSON under routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	msg, err := newPublishing(payload, time.Now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.logger.Debug("event published", slog.String("routing_key", routingKey), slog.String("message_id", msg.MessageId))
	return nil
}

func newPublishing(payload any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}

// MergeNotifier forwards committed merges as customer.merged events.
type MergeNotifier struct {
	publisher *Publisher
}

func NewMergeNotifier(p *Publisher) *MergeNotifier {
	return &MergeNotifier{publisher: p}
}

func (n *MergeNotifier) CustomerMerged(ctx context.Context, event merge.Event) error {
	return n.publisher.Publish(ctx, RoutingCustomerMerged, event)
}
