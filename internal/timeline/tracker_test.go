package timeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memohai/deckcrm/internal/store"
)

func directed(customer string, typ ItemType, direction string, minutes int) Item {
	it := item(customer+"-"+direction, typ, minutes)
	it.CustomerID = customer
	it.Direction = direction
	return it
}

func TestTrackerFollowsMostRecentDirection(t *testing.T) {
	sequences := []struct {
		name       string
		directions []string
		want       bool
	}{
		{"single inbound", []string{store.DirectionInbound}, true},
		{"replied", []string{store.DirectionInbound, store.DirectionOutbound}, false},
		{"new inbound after reply", []string{store.DirectionInbound, store.DirectionOutbound, store.DirectionInbound}, true},
		{"outbound only", []string{store.DirectionOutbound}, false},
	}
	for _, tc := range sequences {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewTracker()
			for i, direction := range tc.directions {
				tracker.Observe(directed("c1", TypeSMS, direction, i))
			}
			assert.Equal(t, tc.want, tracker.Unreplied("c1"))
		})
	}
}

func TestTrackerIgnoresOlderAndSystemEvents(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe(directed("c1", TypeEmail, store.DirectionInbound, 10))
	tracker.Observe(directed("c1", TypeEmail, store.DirectionOutbound, 5))
	assert.True(t, tracker.Unreplied("c1"))

	tracker.Observe(directed("c1", TypeLead, store.DirectionSystem, 20))
	tracker.Observe(directed("c1", TypeInvoice, store.DirectionOutbound, 30))
	assert.True(t, tracker.Unreplied("c1"))

	tracker.Observe(directed("c1", TypeCall, store.DirectionOutbound, 40))
	assert.False(t, tracker.Unreplied("c1"))
}

func TestTrackerCustomersAndReset(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe(directed("b", TypeSMS, store.DirectionInbound, 1))
	tracker.Observe(directed("a", TypeSMS, store.DirectionInbound, 1))
	tracker.Observe(directed("c", TypeSMS, store.DirectionOutbound, 1))
	assert.Equal(t, []string{"a", "b"}, tracker.Customers())

	tracker.Forget("a")
	assert.Equal(t, []string{"b"}, tracker.Customers())

	tracker.Reset([]Item{directed("c", TypeCall, store.DirectionInbound, 2)})
	assert.Equal(t, []string{"c"}, tracker.Customers())
}

func TestTrackerResetIsAtomic(t *testing.T) {
	tracker := NewTracker()
	snapshot := []Item{directed("c1", TypeSMS, store.DirectionInbound, 1)}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tracker.Reset(snapshot)
		}()
		go func(i int) {
			defer wg.Done()
			tracker.Observe(directed("c2", TypeCall, store.DirectionInbound, i))
		}(i)
	}
	wg.Wait()

	tracker.Reset(snapshot)
	assert.Equal(t, []string{"c1"}, tracker.Customers())
}

func TestTrackerRecompute(t *testing.T) {
	tracker := NewTracker()
	inbound := directed("c1", TypeSMS, store.DirectionInbound, 1)
	tracker.Reset([]Item{inbound, directed("c1", TypeEmail, store.DirectionOutbound, 3)})
	assert.False(t, tracker.Unreplied("c1"))

	tracker.Recompute("c1", []Item{inbound})
	assert.True(t, tracker.Unreplied("c1"))

	tracker.Recompute("c1", nil)
	assert.Empty(t, tracker.Customers())
}
