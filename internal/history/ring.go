// Package history keeps a bounded in-memory ring of closed execution
// summaries for recent-history queries. It is a convenience view only; the
// durable audit trail lives with the external audit-history collaborator.
package history

import (
	"sync"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
)

// Ring is a fixed-capacity buffer of summaries with oldest-first eviction.
// It has its own lock so retaining history never serializes unrelated
// executions against each other.
type Ring struct {
	mu      sync.RWMutex
	entries []ledger.Summary
	cap     int
}

// NewRing creates a ring retaining at most capacity summaries.
// A capacity below 1 is treated as 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{cap: capacity}
}

// Add appends a summary, evicting the oldest entry when full.
func (r *Ring) Add(s ledger.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == r.cap {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = s
		return
	}
	r.entries = append(r.entries, s)
}

// Recent returns up to n summaries, newest first. n <= 0 returns all.
func (r *Ring) Recent(n int) []ledger.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]ledger.Summary, n)
	for i := range n {
		out[i] = r.entries[len(r.entries)-1-i]
	}
	return out
}

// Len returns the number of retained summaries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
