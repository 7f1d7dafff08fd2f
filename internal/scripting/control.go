package scripting

import (
	"context"
	"errors"
	"time"
)

// ErrCancelled is returned from checkpoints once a stop was requested.
var ErrCancelled = errors.New("scripting: script cancelled")

// Control is the handle a running script uses to cooperate with the runtime.
type Control struct {
	ctx     context.Context
	script  *Script
	manager *Manager
	started time.Time
}

// Context returns the run's context. It is cancelled on stop.
func (c *Control) Context() context.Context {
	return c.ctx
}

// Sleep pauses for d. It returns ErrCancelled early if the script is stopped.
func (c *Control) Sleep(d time.Duration) error {
	if d <= 0 {
		return c.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-c.ctx.Done():
		return ErrCancelled
	case <-t.C:
		return nil
	}
}

// StopRequested reports whether the script was asked to stop.
func (c *Control) StopRequested() bool {
	return c.ctx.Err() != nil
}

// Err returns ErrCancelled once the script was asked to stop, nil otherwise.
func (c *Control) Err() error {
	if c.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// CheckTerminated is an alias of Err for use as an explicit checkpoint.
func (c *Control) CheckTerminated() error {
	return c.Err()
}

// Terminate stops the calling script and returns ErrCancelled, which the
// body should return.
func (c *Control) Terminate() error {
	c.script.Stop()
	return ErrCancelled
}

// TerminateAll stops every script of the manager, including this one.
func (c *Control) TerminateAll() {
	if c.manager != nil {
		c.manager.StopAll()
	}
}

// Time returns the time elapsed since the run started.
func (c *Control) Time() time.Duration {
	return time.Since(c.started)
}

// ScriptName returns the name of the running script.
func (c *Control) ScriptName() string {
	return c.script.Name()
}
