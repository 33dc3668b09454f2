package timeline

import (
	"sort"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpReload asks the consumer to load the timeline again.
	OpReload Op = "reload"
)

// Event is an incremental timeline change.
type Event struct {
	Op         Op     `json:"op"`
	Item       *Item  `json:"item,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// Feed is a timeline kept sorted by timestamp, newest first. Items with the same timestamp
// keep their arrival order. Feed is not safe for concurrent use.
type Feed struct {
	items []Item
	limit int
}

// NewFeed builds a feed from items in any order. limit <= 0 means unbounded.
func NewFeed(items []Item, limit int) *Feed {
	f := &Feed{limit: limit}
	f.Reset(items)
	return f
}

// Reset replaces the feed content, dropping duplicate keys (first occurrence wins).
func (f *Feed) Reset(items []Item) {
	seen := make(map[Key]struct{}, len(items))
	unique := make([]Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Key()]; ok {
			continue
		}
		seen[item.Key()] = struct{}{}
		unique = append(unique, item)
	}
	SortNewestFirst(unique)
	f.items = unique
	f.trim()
}

// SortNewestFirst sorts items by timestamp descending, stable on ties.
func SortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
}

func (f *Feed) Len() int {
	return len(f.items)
}

// Items returns a copy of the ordered content.
func (f *Feed) Items() []Item {
	out := make([]Item, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) indexOf(key Key) int {
	for i := range f.items {
		if f.items[i].Key() == key {
			return i
		}
	}
	return -1
}

// insertionPoint is the index of the first item strictly older than item.
func (f *Feed) insertionPoint(item Item) int {
	return sort.Search(len(f.items), func(i int) bool {
		return f.items[i].Timestamp.Before(item.Timestamp)
	})
}

func (f *Feed) splice(item Item) {
	at := f.insertionPoint(item)
	f.items = append(f.items, Item{})
	copy(f.items[at+1:], f.items[at:])
	f.items[at] = item
	f.trim()
}

func (f *Feed) trim() {
	if f.limit > 0 && len(f.items) > f.limit {
		f.items = f.items[:f.limit]
	}
}

// Insert adds item at its sorted position. An item whose key is already present is treated
// as an update, so duplicate deliveries never create duplicate entries.
func (f *Feed) Insert(item Item) {
	if f.indexOf(item.Key()) >= 0 {
		f.Update(item)
		return
	}
	f.splice(item)
}

// Update replaces the item with the same key. The position only changes when the timestamp
// changed. Unknown keys are inserted.
func (f *Feed) Update(item Item) {
	i := f.indexOf(item.Key())
	if i < 0 {
		f.splice(item)
		return
	}
	if f.items[i].Timestamp.Equal(item.Timestamp) {
		f.items[i] = item
		return
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	f.splice(item)
}

// Delete removes the item with key. It reports whether anything was removed.
func (f *Feed) Delete(key Key) bool {
	i := f.indexOf(key)
	if i < 0 {
		return false
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	return true
}

// Apply folds an insert, update or delete event into the feed. Reload events are left to
// the caller, which owns the data source.
func (f *Feed) Apply(ev Event) {
	if ev.Item == nil {
		return
	}
	switch ev.Op {
	case OpInsert:
		f.Insert(*ev.Item)
	case OpUpdate:
		f.Update(*ev.Item)
	case OpDelete:
		f.Delete(ev.Item.Key())
	}
}
