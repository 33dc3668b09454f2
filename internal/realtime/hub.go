// Package realtime fans out record changes to subscribers filtered by table and customer.
package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64
)

// Op is the kind of change applied to a record.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpResync tells a subscriber that it missed changes and must reload. It carries no
	// table or record.
	OpResync Op = "resync"
)

// Change describes one committed mutation of a record.
// Record holds the new row for inserts and updates, and the removed row for deletes.
type Change struct {
	Table      string          `json:"table"`
	Op         Op              `json:"op"`
	CustomerID string          `json:"customer_id,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	At         time.Time       `json:"at"`
}

// Filter selects which changes a subscriber receives. Zero values match everything.
type Filter struct {
	Tables     []string
	CustomerID string
}

// Match reports whether change passes the filter.
func (f Filter) Match(change Change) bool {
	if id := strings.TrimSpace(f.CustomerID); id != "" && change.CustomerID != id {
		return false
	}
	if len(f.Tables) == 0 {
		return true
	}
	for _, table := range f.Tables {
		if table == change.Table {
			return true
		}
	}
	return false
}

// Publisher publishes changes to subscribers.
type Publisher interface {
	Publish(change Change)
}

// Subscriber registers filtered change streams.
type Subscriber interface {
	Subscribe(filter Filter, buffer int) (string, <-chan Change, func())
}

type stream struct {
	filter Filter
	ch     chan Change
	// lagged is set once a change was dropped and cleared when the resync marker is queued.
	lagged atomic.Bool
}

// Hub is an in-process pub/sub dispatcher for record changes.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*stream
	onDrop  func(Change)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]*stream{},
	}
}

// OnDrop installs a hook invoked whenever a slow subscriber misses a change.
func (h *Hub) OnDrop(fn func(Change)) {
	h.mu.Lock()
	h.onDrop = fn
	h.mu.Unlock()
}

// Publish delivers change to every matching subscriber without blocking.
func (h *Hub) Publish(change Change) {
	if h == nil || change.Table == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.streams {
		if !s.filter.Match(change) {
			continue
		}
		h.deliver(s, change)
	}
}

// deliver queues change without blocking. A full stream is marked lagged and, on its next
// delivery, receives a resync marker in place of the change. The change is already
// committed, so the reload the marker triggers covers it.
func (h *Hub) deliver(s *stream, change Change) {
	next := change
	if s.lagged.Load() {
		next = Change{Op: OpResync, CustomerID: s.filter.CustomerID, At: change.At}
	}
	select {
	case s.ch <- next:
		if next.Op == OpResync {
			s.lagged.Store(false)
		}
	default:
		s.lagged.Store(true)
		if h.onDrop != nil {
			h.onDrop(change)
		}
	}
}

// Subscribe registers a filtered subscriber.
// It returns a stream ID, read-only change channel, and a cancel function.
func (h *Hub) Subscribe(filter Filter, buffer int) (string, <-chan Change, func()) {
	if h == nil {
		ch := make(chan Change)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Change, buffer)

	h.mu.Lock()
	h.streams[streamID] = &stream{filter: filter, ch: ch}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if current, ok := h.streams[streamID]; ok {
				delete(h.streams, streamID)
				close(current.ch)
			}
			h.mu.Unlock()
		})
	}
	return streamID, ch, cancel
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}
