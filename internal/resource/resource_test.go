package resource

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Request
// ============================================================================

func TestRequest_FreeResourceGrants(t *testing.T) {
	r := New()

	h := r.Request(DefaultPriority, nil)
	if h == nil {
		t.Fatal("Request() on free resource = nil, want handle")
	}
	if p, held := r.Holder(); !held || p != DefaultPriority {
		t.Errorf("Holder() = (%d, %v), want (0, true)", p, held)
	}
}

func TestRequest_StrongerHolderDenies(t *testing.T) {
	r := New()
	h1 := r.Request(1, nil)

	if h2 := r.Request(2, nil); h2 != nil {
		t.Fatal("Request(2) while priority 1 holds = handle, want nil")
	}
	if h1.IsInterrupted() {
		t.Error("holder was interrupted by a weaker request")
	}
}

func TestRequest_SamePriorityReturnsSameHandle(t *testing.T) {
	r := New()
	h1 := r.Request(0, nil)
	h2 := r.Request(0, nil)

	if h1 != h2 {
		t.Fatal("same-priority request returned a different handle")
	}

	// Not reference counted: one release frees it.
	h1.Release()
	if _, held := r.Holder(); held {
		t.Error("resource still held after a single release")
	}
	if h3 := r.Request(5, nil); h3 == nil {
		t.Error("Request() after release = nil, want handle")
	}
}

func TestRequest_WeakerHolderIsPreempted(t *testing.T) {
	r := New()

	var calls atomic.Int32
	h1 := r.Request(2, func() { calls.Add(1) })
	h2 := r.Request(1, nil)

	if h2 == nil || h2 == h1 {
		t.Fatal("stronger request did not receive a new handle")
	}
	if !h1.IsInterrupted() {
		t.Error("preempted handle is not interrupted")
	}
	if calls.Load() != 1 {
		t.Errorf("preemption callback calls = %d, want 1", calls.Load())
	}
	if h2.IsInterrupted() {
		t.Error("new handle starts interrupted")
	}
	if p, _ := r.Holder(); p != 1 {
		t.Errorf("priority = %d, want 1", p)
	}
}

// ============================================================================
// Release / Reset
// ============================================================================

func TestRelease_StaleHandleIsNoop(t *testing.T) {
	r := New()
	h1 := r.Request(2, nil)
	h2 := r.Request(1, nil)

	h1.Release()
	if p, held := r.Holder(); !held || p != 1 {
		t.Errorf("stale release changed holder: (%d, %v)", p, held)
	}

	h2.Release()
	h2.Release()
	if _, held := r.Holder(); held {
		t.Error("resource held after release")
	}
}

func TestReset_DropsHolderSilently(t *testing.T) {
	r := New()
	var called bool
	h := r.Request(3, func() { called = true })

	r.Reset()

	if _, held := r.Holder(); held {
		t.Error("resource held after Reset()")
	}
	if called || h.IsInterrupted() {
		t.Error("Reset() notified the holder")
	}
	if r.Request(10, nil) == nil {
		t.Error("Request() after Reset() = nil")
	}
}

// ============================================================================
// Handle
// ============================================================================

func TestInterrupt_FiresCallbackOnce(t *testing.T) {
	r := New()
	var calls int
	h := r.Request(0, func() { calls++ })

	h.Interrupt()
	h.Interrupt()

	if calls != 1 {
		t.Errorf("callback calls = %d, want 1", calls)
	}
	if !h.IsInterrupted() {
		t.Error("IsInterrupted() = false after Interrupt()")
	}
}

func TestInterrupt_CallbackMayRelease(t *testing.T) {
	r := New()
	var h *Handle
	h = r.Request(0, func() { h.Release() })

	done := make(chan struct{})
	go func() {
		h.Interrupt()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Interrupt() blocked on a callback that releases the handle")
	}
	if _, held := r.Holder(); held {
		t.Error("resource still held after the callback released it")
	}
}

func TestRunUninterruptible(t *testing.T) {
	r := New()
	h := r.Request(1, nil)

	var ran int
	if !h.RunUninterruptible(func() { ran++ }) {
		t.Error("RunUninterruptible() = false on live handle")
	}

	r.Request(0, nil) // preempt
	if h.RunUninterruptible(func() { ran++ }) {
		t.Error("RunUninterruptible() = true on interrupted handle")
	}
	if ran != 1 {
		t.Errorf("fn ran %d times, want 1", ran)
	}
}

func TestConcurrentRequests(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			if h := r.Request(p%5, nil); h != nil {
				h.RunUninterruptible(func() {})
				h.Release()
			}
		}(i)
	}
	wg.Wait()
}
