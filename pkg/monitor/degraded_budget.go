package monitor

import (
	"sync"
	"time"
)

// DegradedBudget tracks cumulative time spent DEGRADED across repeated
// entries within one process lifetime, per SPEC_FULL.md §C.4: the original
// tool does not reset its degraded_monitoring_timeout clock between
// distinct DEGRADED episodes, only between process restarts, so a node
// that flaps in and out of DEGRADED still hits the timeout once its total
// degraded time crosses the configured budget.
type DegradedBudget struct {
	limit time.Duration

	mu        sync.Mutex
	spent     time.Duration
	enteredAt time.Time
	active    bool
}

// NewDegradedBudget builds a budget that trips once cumulative degraded
// time reaches limit.
func NewDegradedBudget(limit time.Duration) *DegradedBudget {
	return &DegradedBudget{limit: limit}
}

// Enter marks the start of a DEGRADED episode. Calling Enter while already
// active is a no-op; the episode's clock keeps running from its first Enter.
func (b *DegradedBudget) Enter(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return
	}
	b.active = true
	b.enteredAt = now
}

// Recover ends the current episode, folding its elapsed time into the
// cumulative total, and returns to NORMAL accounting.
func (b *DegradedBudget) Recover(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	b.spent += now.Sub(b.enteredAt)
	b.active = false
}

// Exceeded reports whether cumulative degraded time (completed episodes
// plus any episode currently in progress) has reached the budget.
func (b *DegradedBudget) Exceeded(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.spent
	if b.active {
		total += now.Sub(b.enteredAt)
	}
	return total >= b.limit
}

// Spent returns the cumulative degraded time observed so far, including any
// in-progress episode.
func (b *DegradedBudget) Spent(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.spent
	if b.active {
		total += now.Sub(b.enteredAt)
	}
	return total
}
