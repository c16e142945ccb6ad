package backend

import (
	"context"
	"sync"
)

// RequestTracker keeps the cancel functions of in-flight HTTP calls so they
// can all be aborted at once, for example when the user disconnects.
//
// Usage pattern:
//
//	ctx, cancel := context.WithCancel(ctx)
//	id := tracker.Track(cancel)
//	defer tracker.Untrack(id)
type RequestTracker struct {
	mu      sync.Mutex
	next    uint64
	cancels map[uint64]context.CancelFunc
}

// NewRequestTracker creates an empty tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		cancels: make(map[uint64]context.CancelFunc),
	}
}

// Track registers cancel and returns a handle for Untrack.
func (rt *RequestTracker) Track(cancel context.CancelFunc) uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.next++
	rt.cancels[rt.next] = cancel
	return rt.next
}

// Untrack releases the call registered under id and cancels its context.
func (rt *RequestTracker) Untrack(id uint64) {
	rt.mu.Lock()
	cancel, ok := rt.cancels[id]
	delete(rt.cancels, id)
	rt.mu.Unlock()

	if ok {
		cancel()
	}
}

// CancelAll aborts every tracked call and returns how many there were.
func (rt *RequestTracker) CancelAll() int {
	rt.mu.Lock()
	cancels := rt.cancels
	rt.cancels = make(map[uint64]context.CancelFunc)
	rt.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// Count returns the number of calls currently in flight.
// Useful for tests and monitoring.
func (rt *RequestTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.cancels)
}

// Scope derives a cancellable context from ctx and tracks it until the
// returned release function is called.
func (rt *RequestTracker) Scope(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	id := rt.Track(cancel)
	return ctx, func() { rt.Untrack(id) }
}
