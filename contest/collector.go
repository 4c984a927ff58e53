package contest

import (
	"context"
	"fmt"
	"sort"
)

// Collector defaults.
const (
	DefaultEvidenceCap     = 200
	DefaultEvidenceSoftMin = 50
	DefaultEvidenceMin     = 3

	// minTextLen is the shortest trimmed text that counts as evidence.
	minTextLen = 3
)

// Collector gathers the candidate messages for one chat and civil day.
type Collector struct {
	store   ActivityStore
	clock   Clock
	cap     int
	softMin int
}

// NewCollector returns a collector reading from store. Non-positive limits
// fall back to the defaults and softMin is clamped to the cap.
func NewCollector(store ActivityStore, clock Clock, capacity, softMin int) *Collector {
	if capacity <= 0 {
		capacity = DefaultEvidenceCap
	}
	if softMin <= 0 {
		softMin = DefaultEvidenceSoftMin
	}
	if softMin > capacity {
		softMin = capacity
	}
	return &Collector{store: store, clock: clock, cap: capacity, softMin: softMin}
}

// Collect returns qualifying messages for day in chronological order: the
// newest in-window messages up to the cap, topped up with older history when
// the day alone is below the soft minimum.
func (c *Collector) Collect(ctx context.Context, chatID, day string) ([]Message, error) {
	start, end, err := c.clock.DayWindow(day)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.Window(ctx, chatID, start, end, c.cap)
	if err != nil {
		return nil, fmt.Errorf("collect window: %w", err)
	}
	out := make([]Message, 0, len(rows))
	for _, m := range rows {
		if len(out) == c.cap {
			break
		}
		if m.Qualifies(minTextLen) && !m.OccurredAt.Before(start) && m.OccurredAt.Before(end) {
			out = append(out, m)
		}
	}

	if missing := c.softMin - len(out); missing > 0 {
		older, err := c.store.Before(ctx, chatID, start, missing)
		if err != nil {
			return nil, fmt.Errorf("collect backfill: %w", err)
		}
		for _, m := range older {
			if len(out) >= c.softMin {
				break
			}
			if m.Qualifies(minTextLen) && m.OccurredAt.Before(start) {
				out = append(out, m)
			}
		}
	}

	// rows arrive newest-first; reverse so equal timestamps keep store order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
