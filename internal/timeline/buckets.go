package timeline

import (
	"time"
)

// Bucket groups the items of one calendar day.
type Bucket struct {
	Label string `json:"label"`
	Date  string `json:"date"`
	Items []Item `json:"items"`
}

// GroupByDay splits newest-first items into day buckets in loc, labelled "Today",
// "Yesterday" or "Monday, March 2" (with the year appended outside the current year).
func GroupByDay(items []Item, now time.Time, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	buckets := make([]Bucket, 0)
	for _, item := range items {
		date := item.Timestamp.In(loc).Format(time.DateOnly)
		if n := len(buckets); n > 0 && buckets[n-1].Date == date {
			buckets[n-1].Items = append(buckets[n-1].Items, item)
			continue
		}
		buckets = append(buckets, Bucket{
			Label: DayLabel(item.Timestamp, now, loc),
			Date:  date,
			Items: []Item{item},
		})
	}
	return buckets
}

func civilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayLabel names the calendar day of ts relative to now.
func DayLabel(ts, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	day := civilDay(ts, loc)
	today := civilDay(now, loc)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == today.Year():
		return day.Format("Monday, January 2")
	default:
		return day.Format("Monday, January 2, 2006")
	}
}
