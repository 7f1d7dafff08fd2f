package remote

import (
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// EdgeTrigger
// ============================================================================

func TestEdgeTrigger_Sequence(t *testing.T) {
	var rising, falling int
	var e EdgeTrigger
	e.OnRising(func() { rising++ })
	e.OnFalling(func() { falling++ })

	for _, v := range []int{0, 1, 1, 0, 1} {
		e.Handle(v)
	}

	if rising != 2 {
		t.Errorf("rising = %d, want 2", rising)
	}
	if falling != 1 {
		t.Errorf("falling = %d, want 1", falling)
	}
}

func TestEdgeTrigger_NoCallbacks(t *testing.T) {
	var e EdgeTrigger
	e.Handle(1)
	e.Handle(0) // must not panic
}

// ============================================================================
// Controller
// ============================================================================

func frameWith(analog []byte, pressed ...int) Frame {
	f := Frame{Analog: analog}
	for _, i := range pressed {
		f.Buttons[i] = true
	}
	return f
}

func TestController_ButtonNeedsReleaseFirst(t *testing.T) {
	c := NewController()
	var presses int
	c.OnButtonPressed(3, func() { presses++ })

	// Held from the start: no press.
	c.Tick(frameWith(nil, 3))
	if presses != 0 {
		t.Fatalf("presses = %d after held start, want 0", presses)
	}

	c.Tick(frameWith(nil))
	c.Tick(frameWith(nil, 3))
	c.Tick(frameWith(nil, 3))

	if presses != 1 {
		t.Errorf("presses = %d, want 1", presses)
	}
	if !c.IsButtonPressed(3) {
		t.Error("IsButtonPressed(3) = false, want true")
	}

	c.Tick(frameWith(nil))
	if c.IsButtonPressed(3) {
		t.Error("IsButtonPressed(3) = true after release")
	}
}

func TestController_ButtonStateWithoutBinding(t *testing.T) {
	c := NewController()
	c.Tick(frameWith(nil))
	c.Tick(frameWith(nil, 5))
	if !c.IsButtonPressed(5) {
		t.Error("IsButtonPressed(5) = false, want true")
	}
	if c.IsButtonPressed(40) {
		t.Error("IsButtonPressed(40) = true for out of range index")
	}
}

func TestController_AnalogNeutral(t *testing.T) {
	c := NewController()
	var calls [][]byte
	c.OnAnalogValues([]int{0, 1}, func(v []byte) { calls = append(calls, v) })

	// First centred frame differs from the empty previous frame.
	c.Tick(frameWith([]byte{127, 127}))
	// Unchanged and centred: silent.
	c.Tick(frameWith([]byte{127, 127}))
	// Off centre: fires every frame even when unchanged.
	c.Tick(frameWith([]byte{200, 127}))
	c.Tick(frameWith([]byte{200, 127}))
	// Back to centre: a change, fires once.
	c.Tick(frameWith([]byte{127, 127}))
	c.Tick(frameWith([]byte{127, 127}))

	want := [][]byte{{127, 127}, {200, 127}, {200, 127}, {127, 127}}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if !slices.Equal(calls[i], want[i]) {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestController_AnalogMissingChannelSkipped(t *testing.T) {
	c := NewController()
	var calls int
	c.OnAnalogValues([]int{0, 4}, func([]byte) { calls++ })

	c.Tick(frameWith([]byte{10, 20}))
	if calls != 0 {
		t.Errorf("calls = %d, want 0 for missing channel", calls)
	}
}

func TestController_AnalogValue(t *testing.T) {
	c := NewController()
	c.Tick(frameWith([]byte{1, 2, 3}))

	if got := c.AnalogValue(2); got != 3 {
		t.Errorf("AnalogValue(2) = %d, want 3", got)
	}
	if got := c.AnalogValue(9); got != 0 {
		t.Errorf("AnalogValue(9) = %d, want 0", got)
	}
}

func TestController_Reset(t *testing.T) {
	c := NewController()
	var presses, analog int
	c.OnButtonPressed(0, func() { presses++ })
	c.OnAnalogValues([]int{0}, func([]byte) { analog++ })

	c.Tick(frameWith([]byte{200}))
	c.Tick(frameWith([]byte{200}, 0))
	if presses != 1 || analog != 2 {
		t.Fatalf("before reset presses=%d analog=%d, want 1 and 2", presses, analog)
	}

	c.Reset()
	if c.IsButtonPressed(0) {
		t.Error("button still pressed after Reset")
	}
	if got := c.AnalogValue(0); got != 0 {
		t.Errorf("AnalogValue(0) = %d after Reset, want 0", got)
	}

	c.Tick(frameWith([]byte{200}))
	c.Tick(frameWith([]byte{200}, 0))
	if presses != 1 || analog != 2 {
		t.Errorf("bindings survived Reset: presses=%d analog=%d", presses, analog)
	}
}

func TestController_CallbackMayQueryState(t *testing.T) {
	c := NewController()
	var seen bool
	c.OnButtonPressed(1, func() { seen = c.IsButtonPressed(1) })

	c.Tick(frameWith(nil))
	c.Tick(frameWith(nil, 1))
	if !seen {
		t.Error("callback observed button as released")
	}
}

// ============================================================================
// Scheduler
// ============================================================================

type counter struct{ n atomic.Int32 }

func (c *counter) inc()       { c.n.Add(1) }
func (c *counter) get() int32 { return c.n.Load() }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_DetectedAndLostOnce(t *testing.T) {
	c := NewController()
	s := NewScheduler(c, 200*time.Millisecond, 50*time.Millisecond)

	var detected, lost counter
	s.Detected.Subscribe(detected.inc)
	s.Lost.Subscribe(lost.inc)

	s.Start()
	// Buttons start armed high; a released frame has to be seen first.
	s.Submit(frameWith(nil))
	waitFor(t, func() bool { return detected.get() == 1 })
	time.Sleep(10 * time.Millisecond)

	s.Submit(frameWith(nil, 2))
	waitFor(t, func() bool { return c.IsButtonPressed(2) })

	// A few heartbeats, then silence.
	for range 3 {
		s.Submit(frameWith(nil, 2))
		time.Sleep(10 * time.Millisecond)
	}
	if !c.IsButtonPressed(2) {
		t.Fatal("button released while still held")
	}
	waitFor(t, func() bool { return !s.Running() })

	if detected.get() != 1 {
		t.Errorf("detected = %d, want 1", detected.get())
	}
	if lost.get() != 1 {
		t.Errorf("lost = %d, want 1", lost.get())
	}
	if c.IsButtonPressed(2) {
		t.Error("button still pressed after session ended")
	}
}

func TestScheduler_NoFirstFrameIsLost(t *testing.T) {
	s := NewScheduler(NewController(), 30*time.Millisecond, 10*time.Millisecond)
	var detected, lost counter
	s.Detected.Subscribe(detected.inc)
	s.Lost.Subscribe(lost.inc)

	s.Start()
	waitFor(t, func() bool { return !s.Running() })

	if detected.get() != 0 || lost.get() != 1 {
		t.Errorf("detected=%d lost=%d, want 0 and 1", detected.get(), lost.get())
	}
}

func TestScheduler_StopDoesNotReportLost(t *testing.T) {
	s := NewScheduler(NewController(), time.Second, time.Second)
	var lost counter
	s.Lost.Subscribe(lost.inc)

	s.Start()
	s.Submit(frameWith(nil))
	s.Stop()

	if lost.get() != 0 {
		t.Errorf("lost = %d after Stop, want 0", lost.get())
	}
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	s := NewScheduler(NewController(), time.Second, time.Second)
	var detected counter
	s.Detected.Subscribe(detected.inc)

	s.Start()
	s.Submit(frameWith(nil))
	waitFor(t, func() bool { return detected.get() == 1 })
	s.Stop()

	s.Start()
	s.Submit(frameWith(nil))
	waitFor(t, func() bool { return detected.get() == 2 })
	s.Stop()
}

func TestScheduler_StopWhenIdle(t *testing.T) {
	s := NewScheduler(NewController(), 0, 0)
	s.Stop()
}

func TestScheduler_LatestFrameWins(t *testing.T) {
	c := NewController()
	s := NewScheduler(c, time.Second, time.Second)

	var mu sync.Mutex
	var seen [][]byte
	c.OnAnalogValues([]int{0}, func(v []byte) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	// Submitted before Start: overwritten, and the stale wake-up is dropped.
	s.Submit(frameWith([]byte{1}))
	s.Submit(frameWith([]byte{2}))
	s.Start()
	defer s.Stop()

	s.Submit(frameWith([]byte{3}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if seen[len(seen)-1][0] != 3 {
		t.Errorf("last value = %d, want 3", seen[len(seen)-1][0])
	}
}
