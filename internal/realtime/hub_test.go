package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/deckcrm/internal/logger"
)

func TestHubPublishScopedByCustomer(t *testing.T) {
	hub := NewHub()
	_, streamA, cancelA := hub.Subscribe(Filter{CustomerID: "cust-a"}, 8)
	defer cancelA()
	_, streamB, cancelB := hub.Subscribe(Filter{CustomerID: "cust-b"}, 8)
	defer cancelB()

	hub.Publish(Change{Table: "sms_logs", Op: OpInsert, CustomerID: "cust-a"})

	select {
	case <-streamA:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected change for cust-a subscriber")
	}

	select {
	case <-streamB:
		t.Fatalf("did not expect cust-b subscriber to receive cust-a change")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestFilterMatch(t *testing.T) {
	change := Change{Table: "email_logs", Op: OpUpdate, CustomerID: "c1"}

	assert.True(t, Filter{}.Match(change))
	assert.True(t, Filter{Tables: []string{"sms_logs", "email_logs"}}.Match(change))
	assert.False(t, Filter{Tables: []string{"sms_logs"}}.Match(change))
	assert.True(t, Filter{CustomerID: "c1", Tables: []string{"email_logs"}}.Match(change))
	assert.False(t, Filter{CustomerID: "c2"}.Match(change))
}

func TestHubCancelUnsubscribe(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(Filter{}, 8)
	require.Equal(t, 1, hub.Len())
	cancel()
	cancel()

	select {
	case _, ok := <-stream:
		if ok {
			t.Fatalf("expected stream to be closed after cancel")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for stream close")
	}
	assert.Equal(t, 0, hub.Len())
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	dropped := 0
	hub.OnDrop(func(Change) { dropped++ })
	_, stream, cancel := hub.Subscribe(Filter{}, 1)
	defer cancel()

	hub.Publish(Change{Table: "call_logs", Op: OpInsert})
	hub.Publish(Change{Table: "call_logs", Op: OpInsert})
	hub.Publish(Change{Table: "call_logs", Op: OpInsert})

	select {
	case <-stream:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected at least one change in buffer")
	}
	assert.Equal(t, 2, dropped)
}

func TestHubIgnoresChangeWithoutTable(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(Filter{}, 1)
	defer cancel()

	hub.Publish(Change{Op: OpInsert})

	select {
	case <-stream:
		t.Fatal("change without table must be ignored")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListenDispatchesByOp(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	var got []Op
	done := make(chan struct{}, 3)
	record := func(change Change) {
		mu.Lock()
		got = append(got, change.Op)
		mu.Unlock()
		done <- struct{}{}
	}

	unsubscribe := Listen(context.Background(), hub, Filter{CustomerID: "c1"}, Callbacks{
		OnInsert: record,
		OnUpdate: record,
		OnDelete: record,
	})

	hub.Publish(Change{Table: "sms_logs", Op: OpInsert, CustomerID: "c1"})
	hub.Publish(Change{Table: "sms_logs", Op: OpInsert, CustomerID: "other"})
	hub.Publish(Change{Table: "sms_logs", Op: OpUpdate, CustomerID: "c1"})
	hub.Publish(Change{Table: "sms_logs", Op: OpDelete, CustomerID: "c1"})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for callback %d", i)
		}
	}
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Op{OpInsert, OpUpdate, OpDelete}, got)
	assert.Equal(t, 0, hub.Len())
}

func TestEnvelopeRoundTripKeepsOrigin(t *testing.T) {
	change := Change{
		Table:      "customers",
		Op:         OpDelete,
		CustomerID: "c1",
		Record:     json.RawMessage(`{"id":"c1"}`),
		At:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := encodeEnvelope("node-1", change)
	require.NoError(t, err)

	origin, decoded, err := decodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, "node-1", origin)
	assert.Equal(t, change.Table, decoded.Table)
	assert.Equal(t, change.Op, decoded.Op)
	assert.JSONEq(t, `{"id":"c1"}`, string(decoded.Record))
	assert.True(t, change.At.Equal(decoded.At))

	_, _, err = decodeEnvelope([]byte(`{"origin":"x","change":{}}`))
	assert.Error(t, err)
}

func TestHubResyncsLaggedSubscriber(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(Filter{CustomerID: "c1"}, 1)
	defer cancel()

	hub.Publish(Change{Table: "sms_logs", Op: OpInsert, CustomerID: "c1"})
	hub.Publish(Change{Table: "sms_logs", Op: OpInsert, CustomerID: "c1"})
	hub.Publish(Change{Table: "sms_logs", Op: OpDelete, CustomerID: "c1"})

	first := <-stream
	assert.Equal(t, OpInsert, first.Op)

	hub.Publish(Change{Table: "call_logs", Op: OpInsert, CustomerID: "c1"})
	marker := <-stream
	assert.Equal(t, OpResync, marker.Op)
	assert.Equal(t, "c1", marker.CustomerID)
	assert.Empty(t, marker.Table)

	hub.Publish(Change{Table: "call_logs", Op: OpUpdate, CustomerID: "c1"})
	next := <-stream
	assert.Equal(t, OpUpdate, next.Op)
	assert.Equal(t, "call_logs", next.Table)
}

func TestListenDeliversResync(t *testing.T) {
	hub := NewHub()
	block := make(chan struct{})
	inserts := make(chan struct{}, 8)
	resyncs := make(chan struct{}, 8)

	unsubscribe := ListenBuffered(context.Background(), hub, Filter{}, 1, Callbacks{
		OnInsert: func(Change) {
			<-block
			inserts <- struct{}{}
		},
		OnResync: func(Change) { resyncs <- struct{}{} },
	})
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		hub.Publish(Change{Table: "sms_logs", Op: OpInsert})
	}
	close(block)
	// Drain what got through before the buffer filled.
	for drained := false; !drained; {
		select {
		case <-inserts:
		case <-time.After(100 * time.Millisecond):
			drained = true
		}
	}

	hub.Publish(Change{Table: "sms_logs", Op: OpInsert})
	select {
	case <-resyncs:
	case <-time.After(time.Second):
		t.Fatal("expected a resync after dropped changes")
	}
}

func TestRedisBridgePublishDoesNotWaitOnRedis(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(Filter{}, DefaultBufferSize)
	defer cancel()

	// Nothing listens on this address and Run is never started.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 5 * time.Second})
	defer client.Close()
	bridge := NewRedisBridge(logger.Nop(), client, "changes", hub)

	start := time.Now()
	for i := 0; i < redisOutboxSize+10; i++ {
		bridge.Publish(Change{Table: "sms_logs", Op: OpInsert})
	}
	assert.Less(t, time.Since(start), time.Second)

	select {
	case change := <-stream:
		assert.Equal(t, "sms_logs", change.Table)
	case <-time.After(time.Second):
		t.Fatal("local subscriber got nothing")
	}
}
