package timeline

import (
	"errors"
	"sync"
)

var ErrSessionClosed = errors.New("timeline session closed")

// Session is the timeline state held by one viewer: the selected customer (empty for the
// global feed), its ordered feed and the unreplied flags. A session is created when the
// viewer opens a timeline and closed when it leaves.
type Session struct {
	mu         sync.Mutex
	customerID string
	feed       *Feed
	tracker    *Tracker
	closed     bool
}

func NewSession(customerID string, limit int) *Session {
	return &Session{
		customerID: customerID,
		feed:       NewFeed(nil, limit),
		tracker:    NewTracker(),
	}
}

func (s *Session) CustomerID() string {
	return s.customerID
}

// Reset replaces the session state with a freshly loaded timeline.
func (s *Session) Reset(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.feed.Reset(items)
	s.tracker.Reset(s.feed.Items())
	return nil
}

// Apply folds ev into the session. It reports whether the caller must reload the timeline.
func (s *Session) Apply(ev Event) (reload bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	if ev.Op == OpReload {
		return true, nil
	}
	if s.customerID != "" && ev.Item != nil && ev.Item.CustomerID != s.customerID {
		return false, nil
	}
	s.feed.Apply(ev)
	if ev.Item == nil {
		return false, nil
	}
	switch ev.Op {
	case OpInsert, OpUpdate:
		s.tracker.Observe(*ev.Item)
	case OpDelete:
		if communication(ev.Item.Type) && ev.Item.CustomerID != "" {
			s.tracker.Recompute(ev.Item.CustomerID, s.feed.Items())
		}
	}
	return false, nil
}

func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.Items()
}

func (s *Session) Unreplied() []string {
	return s.tracker.Customers()
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.feed.Reset(nil)
	s.tracker.Reset(nil)
}
