package raft

import (
	"sync"
	"time"
)

const defaultProblemHistoryLimit = 64

// Problem is one entry in the bounded message-problem history: a
// message that was rejected, dropped, or that provoked a handler
// exception. Recorded, never propagated to the transport.
type Problem struct {
	When   time.Time
	Reason string
	Err    error
}

// problemHistory is a bounded, most-recent-wins ring buffer.
type problemHistory struct {
	mu    sync.Mutex
	limit int
	items []Problem
	next  int
	full  bool
}

func newProblemHistory(limit int) *problemHistory {
	if limit <= 0 {
		limit = defaultProblemHistoryLimit
	}
	return &problemHistory{limit: limit, items: make([]Problem, limit)}
}

func (h *problemHistory) record(reason string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[h.next] = Problem{When: time.Now(), Reason: reason, Err: err}
	h.next = (h.next + 1) % h.limit
	if h.next == 0 {
		h.full = true
	}
}

// Snapshot returns the recorded problems, oldest first.
func (h *problemHistory) Snapshot() []Problem {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]Problem, h.next)
		copy(out, h.items[:h.next])
		return out
	}
	out := make([]Problem, h.limit)
	copy(out, h.items[h.next:])
	copy(out[h.limit-h.next:], h.items[:h.next])
	return out
}
