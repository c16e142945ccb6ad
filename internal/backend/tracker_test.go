package backend

import (
	"context"
	"sync"
	"testing"
)

func TestRequestTracker_TrackUntrack(t *testing.T) {
	rt := NewRequestTracker()

	canceled := false
	id := rt.Track(func() { canceled = true })
	if rt.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", rt.Count())
	}

	rt.Untrack(id)
	if rt.Count() != 0 {
		t.Errorf("Count() = %d, want 0", rt.Count())
	}
	if !canceled {
		t.Error("Untrack should release the context")
	}

	// Untracking twice is harmless.
	rt.Untrack(id)
}

func TestRequestTracker_CancelAll(t *testing.T) {
	rt := NewRequestTracker()

	var ctxs []context.Context
	for i := 0; i < 3; i++ {
		ctx, _ := rt.Scope(context.Background())
		ctxs = append(ctxs, ctx)
	}

	if n := rt.CancelAll(); n != 3 {
		t.Errorf("CancelAll() = %d, want 3", n)
	}
	for i, ctx := range ctxs {
		if ctx.Err() == nil {
			t.Errorf("context %d not canceled", i)
		}
	}
	if rt.Count() != 0 {
		t.Errorf("Count() = %d after CancelAll, want 0", rt.Count())
	}
}

func TestRequestTracker_Concurrent(t *testing.T) {
	rt := NewRequestTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release := rt.Scope(context.Background())
			release()
		}()
	}
	wg.Wait()

	if rt.Count() != 0 {
		t.Errorf("Count() = %d, want 0", rt.Count())
	}
}
