package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/realtime"
	"github.com/memohai/deckcrm/internal/store"
	"github.com/memohai/deckcrm/internal/store/storetest"
)

func strPtr(s string) *string { return &s }

type clock struct {
	now time.Time
}

func (c *clock) tick() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func seed(t *testing.T, mem *storetest.Memory) (store.Customer, store.Customer) {
	t.Helper()
	ctx := context.Background()
	ana, err := mem.CreateCustomer(ctx, store.CustomerFields{FullName: "Ana", Phone: strPtr("+15550001")})
	require.NoError(t, err)
	bo, err := mem.CreateCustomer(ctx, store.CustomerFields{FullName: "Bo"})
	require.NoError(t, err)

	_, err = mem.CreateLead(ctx, store.LeadFields{CustomerID: &ana.ID, FullName: "Ana", Status: "new"})
	require.NoError(t, err)
	_, err = mem.InsertMessage(ctx, store.Message{Channel: store.ChannelSMS, CustomerID: ana.ID, Direction: store.DirectionInbound, Body: "Is Friday ok?", Status: store.StatusReceived})
	require.NoError(t, err)
	_, err = mem.CreateEstimate(ctx, store.DocumentFields{CustomerID: ana.ID, PriceCents: 45000, ServiceDescription: strPtr("Deck stain")})
	require.NoError(t, err)
	_, err = mem.InsertMessage(ctx, store.Message{Channel: store.ChannelEmail, CustomerID: bo.ID, Direction: store.DirectionOutbound, Subject: strPtr("Quote"), Body: "Attached", Status: store.StatusSent})
	require.NoError(t, err)
	_, err = mem.InsertCall(ctx, store.Call{CustomerID: ana.ID, Direction: store.DirectionOutbound, DurationSeconds: 60})
	require.NoError(t, err)
	return ana, bo
}

func newMemory() *storetest.Memory {
	mem := storetest.NewMemory(nil)
	c := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	mem.Now = c.tick
	return mem
}

func TestAggregatorLoadMergesSourcesNewestFirst(t *testing.T) {
	mem := newMemory()
	ana, _ := seed(t, mem)
	agg := NewAggregator(logger.Nop(), mem, realtime.NewHub(), config.TimelineConfig{})

	all, err := agg.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []ItemType{TypeCall, TypeEmail, TypeEstimate, TypeSMS, TypeLead}, itemTypes(all))

	mine, err := agg.Load(context.Background(), ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []ItemType{TypeCall, TypeEstimate, TypeSMS, TypeLead}, itemTypes(mine))
	assert.Equal(t, "Estimate $450.00", mine[1].Title)
	assert.Equal(t, store.DirectionSystem, mine[3].Direction)

	_, err = agg.Load(context.Background(), "not-an-id")
	require.ErrorIs(t, err, store.ErrInvalidID)
}

func TestAggregatorLoadRespectsLimit(t *testing.T) {
	mem := newMemory()
	seed(t, mem)
	agg := NewAggregator(logger.Nop(), mem, realtime.NewHub(), config.TimelineConfig{Limit: 2})

	items, err := agg.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []ItemType{TypeCall, TypeEmail}, itemTypes(items))
}

func itemTypes(items []Item) []ItemType {
	out := make([]ItemType, len(items))
	for i, it := range items {
		out[i] = it.Type
	}
	return out
}

func TestAggregatorSubscribeTranslatesChanges(t *testing.T) {
	hub := realtime.NewHub()
	mem := storetest.NewMemory(hub)
	ana, err := mem.CreateCustomer(context.Background(), store.CustomerFields{FullName: "Ana"})
	require.NoError(t, err)
	agg := NewAggregator(logger.Nop(), mem, hub, config.TimelineConfig{})

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	events, cancel := agg.Subscribe(ctx, ana.ID)
	defer cancel()

	msg, err := mem.InsertMessage(context.Background(), store.Message{Channel: store.ChannelSMS, CustomerID: ana.ID, Direction: store.DirectionInbound, Body: "hello", Status: store.StatusReceived})
	require.NoError(t, err)
	_, err = mem.AddLeadPhoto(context.Background(), mustLead(t, mem, ana.ID), "https://example.com/p.jpg", nil)
	require.NoError(t, err)
	_, err = mem.UpdateCustomer(context.Background(), ana.ID, store.CustomerFields{FullName: "Ana B", Language: "en"})
	require.NoError(t, err)

	got := collectEvents(t, events, 3)
	require.Equal(t, OpInsert, got[0].Op)
	assert.Equal(t, TypeSMS, got[0].Item.Type)
	assert.Equal(t, msg.ID, got[0].Item.ID)
	assert.Equal(t, "hello", got[0].Item.Description)
	assert.Equal(t, OpInsert, got[1].Op)
	assert.Equal(t, TypeLead, got[1].Item.Type)
	assert.Equal(t, OpReload, got[2].Op)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, hub.Len())
}

func mustLead(t *testing.T, mem *storetest.Memory, customerID string) string {
	t.Helper()
	lead, err := mem.CreateLead(context.Background(), store.LeadFields{CustomerID: &customerID, FullName: "Ana", Status: "new"})
	require.NoError(t, err)
	return lead.ID
}

func collectEvents(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestEventFromChangeIgnoresUnrelatedTables(t *testing.T) {
	_, ok, err := EventFromChange(realtime.Change{Table: store.TableActivity, Op: realtime.OpInsert, Record: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = EventFromChange(realtime.Change{Table: store.TableCustomers, Op: realtime.OpInsert})
	require.NoError(t, err)
	assert.False(t, ok)

	ev, ok, err := EventFromChange(realtime.Change{Table: store.TableCustomers, Op: realtime.OpDelete, CustomerID: "c1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Event{Op: OpReload, CustomerID: "c1"}, ev)

	_, ok, err = EventFromChange(realtime.Change{Table: store.TableCalls, Op: realtime.OpInsert})
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestAggregatorSubscribeReloadsAfterOverflow(t *testing.T) {
	hub := realtime.NewHub()
	mem := storetest.NewMemory(hub)
	ctx := context.Background()
	ana, err := mem.CreateCustomer(ctx, store.CustomerFields{FullName: "Ana"})
	require.NoError(t, err)
	agg := NewAggregator(logger.Nop(), mem, hub, config.TimelineConfig{Buffer: 1})

	events, cancel := agg.Subscribe(ctx, ana.ID)
	defer cancel()
	session := NewSession(ana.ID, agg.Limit())
	defer session.Close()
	initial, err := agg.Load(ctx, ana.ID)
	require.NoError(t, err)
	require.NoError(t, session.Reset(initial))

	insert := func() {
		_, err := mem.InsertMessage(ctx, store.Message{Channel: store.ChannelSMS, CustomerID: ana.ID, Direction: store.DirectionInbound, Body: "hi", Status: store.StatusReceived})
		require.NoError(t, err)
	}
	reloads := 0
	drain := func() {
		for {
			select {
			case ev := <-events:
				reload, err := session.Apply(ev)
				require.NoError(t, err)
				if reload {
					reloads++
					items, err := agg.Load(ctx, ana.ID)
					require.NoError(t, err)
					require.NoError(t, session.Reset(items))
				}
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}

	for i := 0; i < 20; i++ {
		insert()
	}
	drain()
	insert()
	drain()

	assert.Positive(t, reloads)
	want, err := agg.Load(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, session.Items(), len(want))
}
