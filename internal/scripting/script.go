package scripting

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/rover-core/internal/event"
)

// State is the lifecycle state of a Script.
type State int

// Script states.
const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Script is one named, restartable unit of execution.
type Script struct {
	// OnStopped fires after every run ends, whether it completed, failed or
	// was stopped. It runs on the script goroutine.
	OnStopped event.Signal

	name     string
	priority int
	body     Body
	manager  *Manager
	logger   Logger

	mu       sync.Mutex
	values   map[string]any
	inputs   map[string]any
	state    State
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	lastRun  uuid.UUID
	lastErr  error
	runCount int
}

// Name returns the unique script name.
func (s *Script) Name() string {
	return s.name
}

// Priority returns the resource priority runs of this script use.
func (s *Script) Priority() int {
	return s.priority
}

// State returns the current lifecycle state.
func (s *Script) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether a run is in progress.
func (s *Script) IsRunning() bool {
	return s.State() != StateIdle
}

// IsStopRequested reports whether the current run was asked to stop.
func (s *Script) IsStopRequested() bool {
	return s.State() == StateStopping
}

// LastError returns the failure of the most recent run, if any.
// Cancelled runs report nil.
func (s *Script) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RunCount returns how many runs were started.
func (s *Script) RunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCount
}

// assign sets a per-script value visible to later runs.
func (s *Script) assign(name string, value any) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

// Start launches a run with inputs replacing those of the previous run.
// nil inputs clear them. It reports false if a run is already in progress
// or the script was torn down.
func (s *Script) Start(inputs map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateIdle {
		return false
	}

	s.inputs = maps.Clone(inputs)
	if s.inputs == nil {
		s.inputs = make(map[string]any)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.New()
	done := make(chan struct{})

	env := &Env{
		RunID:  runID,
		Values: mergeEnv(s.manager.globalsSnapshot(), s.values, s.inputs),
		Control: &Control{
			ctx:     ctx,
			script:  s,
			manager: s.manager,
			started: time.Now(),
		},
	}

	s.state = StateRunning
	s.cancel = cancel
	s.done = done
	s.lastRun = runID
	s.lastErr = nil
	s.runCount++

	go s.run(env, cancel, done)
	return true
}

func (s *Script) run(env *Env, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	s.logger.Debug("script started", "script", s.name, "run_id", env.RunID)
	err := s.safeRun(env)

	switch {
	case err == nil:
		s.logger.Debug("script finished", "script", s.name, "run_id", env.RunID)
	case errors.Is(err, ErrCancelled) || env.Control.StopRequested():
		s.logger.Debug("script stopped", "script", s.name, "run_id", env.RunID)
		err = nil
	default:
		s.logger.Error("script failed", "script", s.name, "run_id", env.RunID, "error", err)
	}

	s.mu.Lock()
	s.state = StateIdle
	s.lastErr = err
	s.mu.Unlock()

	s.OnStopped.Emit()
}

func (s *Script) safeRun(env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()
	return s.body.run(env)
}

// Stop requests the current run to stop. It does not wait.
func (s *Script) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.state = StateStopping
		s.cancel()
	}
}

// Wait blocks until the current run, if any, has ended.
func (s *Script) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// close stops the script, waits for it and prevents further runs.
func (s *Script) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	s.Wait()
}
