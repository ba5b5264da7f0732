package raft

import (
	"sync"
	"time"
)

// stateTimer is a single timer owned by one RoleState instance.
// Ownership and cancellation are explicit: a fired callback that races
// stop() observes a cancelled flag and performs no work.
type stateTimer struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

// newStateTimer arms a timer that invokes fn after d, guarded against
// firing once cancel() has been called. fn is invoked on its own
// goroutine; callers that mutate Hull/RoleState state from fn must
// take the Hull's lock themselves.
func newStateTimer(d time.Duration, fn func()) *stateTimer {
	st := &stateTimer{}
	st.timer = time.AfterFunc(d, func() {
		st.mu.Lock()
		cancelled := st.cancelled
		st.mu.Unlock()
		if cancelled {
			return
		}
		fn()
	})
	return st
}

// cancel stops the timer and marks it so a callback already in flight
// becomes a no-op.
func (st *stateTimer) cancel() {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.cancelled = true
	st.mu.Unlock()
	st.timer.Stop()
}

// reset rearms the timer for a new duration, un-cancelling it.
func (st *stateTimer) reset(d time.Duration) {
	st.mu.Lock()
	st.cancelled = false
	st.mu.Unlock()
	st.timer.Reset(d)
}
