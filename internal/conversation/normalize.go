package conversation

import (
	"sort"
	"time"
)

// AssignTimestamps fills in missing timestamps and reports how many it set.
// A lone message gets now. In a batch, missing timestamps start len(msgs)
// minutes before now and advance one minute per filled message, so sorting
// by time keeps submission order.
func AssignTimestamps(msgs []Message, now time.Time) int {
	now = now.UTC().Truncate(time.Second)
	if len(msgs) == 1 {
		if msgs[0].Timestamp.IsZero() {
			msgs[0].Timestamp = now
			return 1
		}
		return 0
	}

	next := now.Add(-time.Duration(len(msgs)) * time.Minute)
	filled := 0
	for i := range msgs {
		if !msgs[i].Timestamp.IsZero() {
			continue
		}
		msgs[i].Timestamp = next
		next = next.Add(time.Minute)
		filled++
	}
	return filled
}

// SortByTime orders msgs by timestamp. Equal timestamps keep their order.
func SortByTime(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// Normalize makes msgs canonical: every message timestamped, sorted by time.
func Normalize(msgs []Message, now time.Time) {
	AssignTimestamps(msgs, now)
	SortByTime(msgs)
}
