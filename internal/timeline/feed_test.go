package timeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func item(id string, typ ItemType, minutes int) Item {
	return Item{ID: id, Type: typ, Timestamp: at(minutes)}
}

func keys(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key().String()
	}
	return out
}

func assertDescending(t *testing.T, items []Item) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		if items[i].Timestamp.After(items[i-1].Timestamp) {
			t.Fatalf("items out of order at %d: %v after %v", i, items[i].Timestamp, items[i-1].Timestamp)
		}
	}
}

func TestNewFeedSortsAndDedupes(t *testing.T) {
	feed := NewFeed([]Item{
		item("1", TypeEmail, 1),
		item("2", TypeSMS, 5),
		item("1", TypeEmail, 9),
		item("1", TypeCall, 3),
	}, 0)
	assert.Equal(t, []string{"sms:2", "call:1", "email:1"}, keys(feed.Items()))
}

func TestFeedInsertPositions(t *testing.T) {
	feed := NewFeed([]Item{item("a", TypeEmail, 10), item("b", TypeEmail, 5)}, 0)

	feed.Insert(item("newest", TypeSMS, 20))
	feed.Insert(item("middle", TypeSMS, 7))
	feed.Insert(item("oldest", TypeSMS, 1))
	feed.Insert(item("tie", TypeCall, 5))

	assert.Equal(t, []string{"sms:newest", "email:a", "sms:middle", "email:b", "call:tie", "sms:oldest"}, keys(feed.Items()))
}

func TestFeedInsertDuplicateDoesNotDuplicate(t *testing.T) {
	feed := NewFeed(nil, 0)
	first := item("x", TypeSMS, 3)
	first.Description = "v1"
	feed.Insert(first)

	again := first
	again.Description = "v2"
	feed.Insert(again)

	require.Equal(t, 1, feed.Len())
	assert.Equal(t, "v2", feed.Items()[0].Description)
}

func TestFeedUpdateKeepsPositionUnlessTimestampChanges(t *testing.T) {
	feed := NewFeed([]Item{item("a", TypeEmail, 30), item("b", TypeEmail, 20), item("c", TypeEmail, 10)}, 0)

	updated := item("b", TypeEmail, 20)
	updated.Metadata = map[string]any{"status": "sent"}
	feed.Update(updated)
	got := feed.Items()
	assert.Equal(t, []string{"email:a", "email:b", "email:c"}, keys(got))
	assert.Equal(t, "sent", got[1].Metadata["status"])

	feed.Update(item("c", TypeEmail, 40))
	assert.Equal(t, []string{"email:c", "email:a", "email:b"}, keys(feed.Items()))
}

func TestFeedUpdateOnlyTouchesMatchingKey(t *testing.T) {
	feed := NewFeed([]Item{item("1", TypeEmail, 2), item("1", TypeSMS, 1)}, 0)
	changed := item("1", TypeSMS, 1)
	changed.Title = "changed"
	feed.Update(changed)

	got := feed.Items()
	assert.Equal(t, "", got[0].Title)
	assert.Equal(t, "changed", got[1].Title)
}

func TestFeedUpdateUnknownKeyInserts(t *testing.T) {
	feed := NewFeed([]Item{item("a", TypeEmail, 10)}, 0)
	feed.Update(item("z", TypeCall, 11))
	assert.Equal(t, []string{"call:z", "email:a"}, keys(feed.Items()))
}

func TestFeedDelete(t *testing.T) {
	feed := NewFeed([]Item{item("1", TypeEmail, 3), item("1", TypeSMS, 2), item("2", TypeSMS, 1)}, 0)

	assert.True(t, feed.Delete(Key{ID: "1", Type: TypeSMS}))
	assert.False(t, feed.Delete(Key{ID: "missing", Type: TypeSMS}))
	assert.Equal(t, []string{"email:1", "sms:2"}, keys(feed.Items()))
}

func TestFeedApplyIgnoresReloadAndNilItem(t *testing.T) {
	feed := NewFeed([]Item{item("a", TypeEmail, 1)}, 0)
	feed.Apply(Event{Op: OpReload})
	feed.Apply(Event{Op: OpInsert})
	assert.Equal(t, 1, feed.Len())

	it := item("a", TypeEmail, 1)
	feed.Apply(Event{Op: OpDelete, Item: &it})
	assert.Equal(t, 0, feed.Len())
}

func TestFeedLimitDropsOldest(t *testing.T) {
	feed := NewFeed([]Item{item("a", TypeEmail, 1), item("b", TypeEmail, 2)}, 2)
	feed.Insert(item("c", TypeEmail, 3))
	assert.Equal(t, []string{"email:c", "email:b"}, keys(feed.Items()))
}

func TestFeedStaysOrderedUnderRandomEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	feed := NewFeed(nil, 0)
	types := []ItemType{TypeEmail, TypeSMS, TypeCall}
	for i := 0; i < 500; i++ {
		it := item(string(rune('a'+rng.Intn(20))), types[rng.Intn(len(types))], rng.Intn(100))
		ops := []Op{OpInsert, OpUpdate, OpDelete}
		feed.Apply(Event{Op: ops[rng.Intn(len(ops))], Item: &it})
		assertDescending(t, feed.Items())
	}
	seen := map[Key]bool{}
	for _, it := range feed.Items() {
		require.False(t, seen[it.Key()], "duplicate key %s", it.Key())
		seen[it.Key()] = true
	}
}
