package schedule

import "sync/atomic"

// Budget caps the number of fetch attempts in a session.
// Reservations are never returned: a failed fetch still counts.
type Budget struct {
	limit int64 // zero means unbounded
	used  atomic.Int64
}

// NewBudget creates a Budget allowing limit attempts. Zero is unbounded.
func NewBudget(limit int) *Budget {
	return &Budget{limit: int64(limit)}
}

// TryReserve reserves one attempt. It returns false without side effects
// once the limit has been reached.
func (b *Budget) TryReserve() bool {
	if b.limit == 0 {
		b.used.Add(1)
		return true
	}
	for {
		cur := b.used.Load()
		if cur >= b.limit {
			return false
		}
		if b.used.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Used returns the number of reserved attempts.
func (b *Budget) Used() int {
	return int(b.used.Load())
}

// Exhausted reports whether no further reservation can succeed.
func (b *Budget) Exhausted() bool {
	return b.limit > 0 && b.used.Load() >= b.limit
}
