package remote

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/rover-core/internal/event"
)

// Default supervision timeouts.
const (
	DefaultFirstFrameTimeout = 2 * time.Second
	DefaultHeartbeatTimeout  = 500 * time.Millisecond
)

// Scheduler feeds submitted frames to a Controller on its own goroutine
// and supervises controller presence.
//
// Detected fires once, on the first frame of a session. Lost fires once
// when frames stop arriving, and never after Stop. Every session ends by
// resetting the Controller.
type Scheduler struct {
	// Detected fires on the first frame of a session.
	Detected event.Signal

	// Lost fires when a session times out.
	Lost event.Signal

	controller *Controller
	firstFrame time.Duration
	heartbeat  time.Duration
	logger     Logger

	frameMu sync.Mutex
	frame   Frame
	ready   chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler returns a stopped Scheduler. Non-positive timeouts select
// the defaults.
func NewScheduler(controller *Controller, firstFrame, heartbeat time.Duration) *Scheduler {
	if firstFrame <= 0 {
		firstFrame = DefaultFirstFrameTimeout
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatTimeout
	}
	return &Scheduler{
		controller: controller,
		firstFrame: firstFrame,
		heartbeat:  heartbeat,
		logger:     noopLogger{},
		ready:      make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Controller returns the controller driven by the scheduler.
func (s *Scheduler) Controller() *Controller {
	return s.controller
}

// Submit records frame as the latest input and wakes the loop. Frames
// submitted faster than the loop consumes them are overwritten.
func (s *Scheduler) Submit(frame Frame) {
	s.frameMu.Lock()
	s.frame = frame
	s.frameMu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Start launches a supervision session. It does nothing if one is running.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return
		}
	}

	// Drop a wake-up left over from before the session.
	select {
	case <-s.ready:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.run(ctx)
	}()
}

// Stop ends the running session and waits for it to exit.
// It is safe to call when no session is running.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a session is active.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) run(ctx context.Context) {
	s.logger.Info("waiting for remote controller")

	start := time.Now()
	first := true
	timer := time.NewTimer(s.firstFrame)
	defer timer.Stop()

	lost := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
			lost = ctx.Err() == nil
			break loop
		case <-s.ready:
		}

		if ctx.Err() != nil {
			break
		}

		if first {
			s.logger.Info("remote controller detected", "time_to_first_frame", time.Since(start))
			s.Detected.Emit()
			first = false
		}

		s.frameMu.Lock()
		frame := s.frame
		s.frameMu.Unlock()
		s.controller.Tick(frame)

		timer.Reset(s.heartbeat)
	}

	if lost {
		s.logger.Info("remote controller lost")
		s.Lost.Emit()
	}

	s.controller.Reset()
	s.logger.Debug("remote controller session ended")
}
