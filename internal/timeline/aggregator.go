package timeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/realtime"
	"github.com/memohai/deckcrm/internal/store"
)

// Aggregator builds timelines from the record store and turns realtime changes into
// timeline events.
type Aggregator struct {
	store  store.Queries
	sub    realtime.Subscriber
	limit  int
	buffer int
	logger *slog.Logger
}

func NewAggregator(log *slog.Logger, st store.Queries, sub realtime.Subscriber, cfg config.TimelineConfig) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = config.DefaultTimelineLimit
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = config.DefaultTimelineBuffer
	}
	return &Aggregator{
		store:  st,
		sub:    sub,
		limit:  limit,
		buffer: buffer,
		logger: log.With(slog.String("service", "timeline")),
	}
}

func (a *Aggregator) Limit() int {
	return a.limit
}

// Load returns the newest items for customerID, or across all customers when it is empty.
func (a *Aggregator) Load(ctx context.Context, customerID string) ([]Item, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID != "" {
		id, err := store.NormalizeID(customerID)
		if err != nil {
			return nil, err
		}
		customerID = id
	}
	filter := store.ListFilter{CustomerID: customerID, Limit: a.limit}
	items := make([]Item, 0)

	for _, channel := range []store.Channel{store.ChannelEmail, store.ChannelSMS} {
		rows, err := a.store.ListMessages(ctx, channel, filter)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			items = append(items, FromMessage(row))
		}
	}
	calls, err := a.store.ListCalls(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, row := range calls {
		items = append(items, FromCall(row))
	}
	leads, err := a.store.ListLeads(ctx, store.LeadFilter{CustomerID: customerID, Limit: a.limit})
	if err != nil {
		return nil, err
	}
	for _, row := range leads {
		items = append(items, FromLead(row))
	}
	estimates, err := a.store.ListEstimates(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, row := range estimates {
		items = append(items, FromEstimate(row))
	}
	invoices, err := a.store.ListInvoices(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, row := range invoices {
		items = append(items, FromInvoice(row))
	}

	SortNewestFirst(items)
	if len(items) > a.limit {
		items = items[:a.limit]
	}
	return items, nil
}

// EventFromChange translates a realtime change. ok is false when the change does not affect
// the timeline. Customer updates and deletes become reloads, since a merge moves rows
// without per-row changes.
func EventFromChange(change realtime.Change) (Event, bool, error) {
	if change.Table == store.TableCustomers {
		if change.Op == realtime.OpInsert {
			return Event{}, false, nil
		}
		return Event{Op: OpReload, CustomerID: change.CustomerID}, true, nil
	}
	item, ok, err := FromChange(change)
	if !ok || err != nil {
		return Event{}, ok, err
	}
	var op Op
	switch change.Op {
	case realtime.OpInsert:
		op = OpInsert
	case realtime.OpUpdate:
		op = OpUpdate
	case realtime.OpDelete:
		op = OpDelete
	default:
		return Event{}, false, errors.New("unknown change op " + string(change.Op))
	}
	return Event{Op: op, Item: &item, CustomerID: change.CustomerID}, true, nil
}

// Subscribe streams timeline events for customerID (all customers when empty). Lost
// realtime changes surface as an OpReload event. The channel is closed once cancel returns;
// cancel must be called to release the subscription.
func (a *Aggregator) Subscribe(ctx context.Context, customerID string) (<-chan Event, func()) {
	ctx, stop := context.WithCancel(ctx)
	out := make(chan Event, a.buffer)
	emit := func(ev Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
	forward := func(change realtime.Change) {
		ev, relevant, err := EventFromChange(change)
		if err != nil {
			a.logger.Warn("skip malformed change", slog.String("table", change.Table), slog.Any("error", err))
			return
		}
		if relevant {
			emit(ev)
		}
	}

	tables := append(Tables(), store.TableCustomers)
	unsubscribe := realtime.ListenBuffered(ctx, a.sub, realtime.Filter{Tables: tables, CustomerID: customerID}, a.buffer, realtime.Callbacks{
		OnInsert: forward,
		OnUpdate: forward,
		OnDelete: forward,
		OnResync: func(realtime.Change) {
			a.logger.Warn("timeline subscriber fell behind", slog.String("customer_id", customerID))
			emit(Event{Op: OpReload, CustomerID: customerID})
		},
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			unsubscribe()
			close(out)
		})
	}
	return out, cancel
}
