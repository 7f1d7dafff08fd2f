package process

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Process tests
// ============================================================================

func TestRunSuccess(t *testing.T) {
	if err := Run(context.Background(), Config{Name: "true", Binary: "/bin/true"}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunFailure(t *testing.T) {
	if err := Run(context.Background(), Config{Name: "false", Binary: "/bin/false"}, nil); err == nil {
		t.Fatal("Run() error = nil, want exit error")
	}
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Config{Name: "missing", Binary: "/nonexistent/binary"}, nil)
	if err == nil {
		t.Fatal("Start() error = nil, want error")
	}
}

func TestStopLongRunning(t *testing.T) {
	p, err := Start(context.Background(), Config{Name: "sleep", Binary: "/bin/sleep", Args: []string{"30"}}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if p.Status() != StatusRunning {
		t.Errorf("Status() = %q, want %q", p.Status(), StatusRunning)
	}

	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop() took %v", elapsed)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}

func TestOnStopCalled(t *testing.T) {
	called := make(chan error, 1)
	p, err := Start(context.Background(), Config{
		Name:   "echo",
		Binary: "/bin/echo",
		Args:   []string{"hello"},
		OnStop: func(err error) { called <- err },
	}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_ = p.Wait()

	select {
	case err := <-called:
		if err != nil {
			t.Errorf("OnStop error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnStop not called")
	}
	if p.Status() != StatusExited {
		t.Errorf("Status() = %q, want %q", p.Status(), StatusExited)
	}
}

// ============================================================================
// Pool tests
// ============================================================================

func TestPoolLimit(t *testing.T) {
	pool := NewPool(2)
	cfg := Config{Name: "sleep", Binary: "/bin/sleep", Args: []string{"30"}}

	for i := 0; i < 2; i++ {
		if _, err := pool.Start(context.Background(), cfg); err != nil {
			t.Fatalf("Start(%d) error = %v", i, err)
		}
	}
	if _, err := pool.Start(context.Background(), cfg); !errors.Is(err, ErrPoolFull) {
		t.Fatalf("third Start() error = %v, want ErrPoolFull", err)
	}
	if got := pool.Running(); got != 2 {
		t.Errorf("Running() = %d, want 2", got)
	}

	pool.StopAll()
	waitFor(t, func() bool { return pool.Running() == 0 })
}

func TestPoolFreesSlotOnExit(t *testing.T) {
	pool := NewPool(1)
	var stopped atomic.Int32

	p, err := pool.Start(context.Background(), Config{
		Name:   "true",
		Binary: "/bin/true",
		OnStop: func(error) { stopped.Add(1) },
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_ = p.Wait()
	waitFor(t, func() bool { return pool.Running() == 0 })

	if stopped.Load() != 1 {
		t.Errorf("OnStop calls = %d, want 1", stopped.Load())
	}
	if _, err := pool.Start(context.Background(), Config{Name: "true", Binary: "/bin/true"}); err != nil {
		t.Errorf("Start() after exit error = %v", err)
	}
}

func TestPoolStartFailureReleasesSlot(t *testing.T) {
	pool := NewPool(1)
	if _, err := pool.Start(context.Background(), Config{Name: "missing", Binary: "/nonexistent/binary"}); err == nil {
		t.Fatal("Start() error = nil, want error")
	}
	if got := pool.Running(); got != 0 {
		t.Errorf("Running() = %d, want 0", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
