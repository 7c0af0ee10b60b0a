package core

import (
	"sync/atomic"
)

// Budget is a shared counter of remaining oracle calls for one run. It is
// an explicit resource object passed to every component that spends it;
// there is no ambient global. Reservations are taken atomically before a
// call and refunded when the call fails after exhausting retries, so a
// persistent outage degrades scores instead of silently draining the run.
type Budget struct {
	total     int64
	remaining atomic.Int64
}

// NewBudget creates a budget of the given number of oracle calls.
func NewBudget(total int) *Budget {
	b := &Budget{total: int64(total)}
	b.remaining.Store(int64(total))
	return b
}

// Reserve atomically takes one unit. Returns false when the budget is
// exhausted, in which case nothing was taken.
func (b *Budget) Reserve() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Refund returns one previously reserved unit. Only call after a failed
// oracle call whose reservation should not be charged.
func (b *Budget) Refund() {
	b.remaining.Add(1)
}

// Remaining reports how many oracle calls are still available.
func (b *Budget) Remaining() int {
	return int(b.remaining.Load())
}

// Spent reports how many oracle calls have been charged so far.
func (b *Budget) Spent() int {
	return int(b.total - b.remaining.Load())
}

// Exhausted reports whether the budget has reached zero.
func (b *Budget) Exhausted() bool {
	return b.remaining.Load() <= 0
}
