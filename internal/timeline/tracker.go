package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/memohai/deckcrm/internal/store"
)

type directionMark struct {
	at      time.Time
	inbound bool
}

// Tracker keeps the "has unreplied inbound message" flag per customer. The flag follows the
// most recent inbound or outbound communication; system events never touch it.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]directionMark
}

func NewTracker() *Tracker {
	return &Tracker{last: map[string]directionMark{}}
}

func communication(t ItemType) bool {
	return t == TypeEmail || t == TypeSMS || t == TypeCall
}

// Observe records item. Events older than the latest seen for the customer are ignored.
func (t *Tracker) Observe(item Item) {
	t.mu.Lock()
	defer t.mu.Unlock()
	observe(t.last, item)
}

func observe(last map[string]directionMark, item Item) {
	if item.CustomerID == "" || !communication(item.Type) {
		return
	}
	if item.Direction != store.DirectionInbound && item.Direction != store.DirectionOutbound {
		return
	}
	if prev, ok := last[item.CustomerID]; ok && item.Timestamp.Before(prev.at) {
		return
	}
	last[item.CustomerID] = directionMark{at: item.Timestamp, inbound: item.Direction == store.DirectionInbound}
}

// Reset rebuilds the flags from items.
func (t *Tracker) Reset(items []Item) {
	last := make(map[string]directionMark)
	for _, item := range items {
		observe(last, item)
	}
	t.mu.Lock()
	t.last = last
	t.mu.Unlock()
}

// Recompute rebuilds the flag of one customer from items, as Reset would. It is used after
// a communication was removed from the feed.
func (t *Tracker) Recompute(customerID string, items []Item) {
	last := make(map[string]directionMark, 1)
	for _, item := range items {
		if item.CustomerID == customerID {
			observe(last, item)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if mark, ok := last[customerID]; ok {
		t.last[customerID] = mark
		return
	}
	delete(t.last, customerID)
}

// Forget drops the flag for a customer, e.g. after it was merged away.
func (t *Tracker) Forget(customerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, customerID)
}

func (t *Tracker) Unreplied(customerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last[customerID].inbound
}

// Customers returns every customer currently flagged, sorted.
func (t *Tracker) Customers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0)
	for id, mark := range t.last {
		if mark.inbound {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
