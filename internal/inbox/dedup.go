package inbox

import (
	"sort"
	"time"

	"github.com/mzahid/dialdesk/internal/timefmt"
)

// DedupWindow is how close in time two messages with the same sender,
// content and type must be to count as the same real-world event. The sync
// and push channels race; the same SMS or call transition can arrive twice
// with different surrogate ids and slightly skewed timestamps.
const DedupWindow = 120 * time.Second

// Clock resolves message timestamps against a display timezone and an
// injectable now, so the time-window comparison stays deterministic in
// tests.
type Clock struct {
	Now func() time.Time
	Loc *time.Location
}

// NewClock returns a wall-clock Clock in loc.
func NewClock(loc *time.Location) Clock {
	return Clock{Now: time.Now, Loc: loc}
}

// Epoch converts a message timestamp to epoch milliseconds (0 when the
// value carries no absolute instant).
func (c Clock) Epoch(value string) int64 {
	return timefmt.ToEpochMillis(value, c.Now(), c.Loc)
}

func contentKey(m Message) string {
	return string(m.Sender) + "|" + m.Content + "|" + string(m.Type)
}

// Exists reports whether candidate duplicates a message already in
// existing. An exact id match wins outright; otherwise an identical
// content key within DedupWindow counts as the same event.
func (c Clock) Exists(existing []Message, candidate Message) bool {
	key := contentKey(candidate)
	candidateMs := c.Epoch(candidate.Timestamp)

	for _, m := range existing {
		if m.ID == candidate.ID {
			return true
		}
		if contentKey(m) != key {
			continue
		}
		diff := c.Epoch(m.Timestamp) - candidateMs
		if diff < 0 {
			diff = -diff
		}
		if diff < DedupWindow.Milliseconds() {
			return true
		}
	}
	return false
}

// DeduplicateAndSort filters msgs through Exists in arrival order, keeping
// the earlier-stored record when two represent the same event, then orders
// the survivors by ascending normalized timestamp. Idempotent: applying it
// to its own output changes nothing.
func (c Clock) DeduplicateAndSort(msgs []Message) []Message {
	result := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !c.Exists(result, m) {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return c.Epoch(result[i].Timestamp) < c.Epoch(result[j].Timestamp)
	})
	return result
}
