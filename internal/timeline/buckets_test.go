package timeline

import (
	"testing"
	"time"
)

func TestDayLabel(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		ts   time.Time
		now  time.Time
		loc  *time.Location
		want string
	}{
		{name: "today", ts: time.Date(2026, 3, 4, 0, 1, 0, 0, time.UTC), now: now, loc: time.UTC, want: "Today"},
		{name: "yesterday", ts: time.Date(2026, 3, 3, 23, 59, 0, 0, time.UTC), now: now, loc: time.UTC, want: "Yesterday"},
		{name: "same year", ts: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), now: now, loc: time.UTC, want: "Sunday, March 1"},
		{name: "previous year", ts: time.Date(2025, 12, 31, 10, 0, 0, 0, time.UTC), now: now, loc: time.UTC, want: "Wednesday, December 31, 2025"},
		// 02:00 UTC on the 4th is still the 3rd in EST.
		{name: "location", ts: time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC), now: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC), loc: est, want: "Yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayLabel(tt.ts, tt.now, tt.loc); got != tt.want {
				t.Errorf("DayLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGroupByDayKeepsOrder(t *testing.T) {
	now := time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
	items := []Item{
		{ID: "1", Type: TypeSMS, Timestamp: time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)},
		{ID: "2", Type: TypeSMS, Timestamp: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)},
		{ID: "3", Type: TypeCall, Timestamp: time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
		{ID: "4", Type: TypeEmail, Timestamp: time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)},
	}

	buckets := GroupByDay(items, now, time.UTC)
	if len(buckets) != 3 {
		t.Fatalf("len(buckets) = %d, want 3", len(buckets))
	}
	wantLabels := []string{"Today", "Yesterday", "Friday, February 20"}
	wantSizes := []int{2, 1, 1}
	for i, b := range buckets {
		if b.Label != wantLabels[i] {
			t.Errorf("buckets[%d].Label = %q, want %q", i, b.Label, wantLabels[i])
		}
		if len(b.Items) != wantSizes[i] {
			t.Errorf("len(buckets[%d].Items) = %d, want %d", i, len(b.Items), wantSizes[i])
		}
	}
	if buckets[0].Date != "2026-03-04" {
		t.Errorf("buckets[0].Date = %q, want 2026-03-04", buckets[0].Date)
	}
	if buckets[2].Items[0].ID != "4" {
		t.Errorf("buckets[2].Items[0].ID = %q, want 4", buckets[2].Items[0].ID)
	}

	if got := GroupByDay(nil, now, time.UTC); len(got) != 0 {
		t.Errorf("GroupByDay(nil) = %v, want empty", got)
	}
}
