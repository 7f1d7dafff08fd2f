package remote

import (
	"slices"
	"sync"
)

// ButtonCount is the number of buttons in a frame.
const ButtonCount = 32

// AnalogCenter is the neutral position of an analog channel.
const AnalogCenter = 127

// Frame is one remote-control input snapshot.
type Frame struct {
	Analog  []byte
	Buttons [ButtonCount]bool
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type analogBinding struct {
	channels []int
	action   func([]byte)
}

// Controller dispatches frames to the bindings of the current
// configuration session.
type Controller struct {
	mu       sync.Mutex
	logger   Logger
	triggers [ButtonCount]EdgeTrigger
	actions  [ButtonCount]func()
	pressed  [ButtonCount]bool
	analog   []analogBinding
	current  []byte
	previous []byte

	// pending collects callbacks produced while the lock is held.
	pending []func()
}

// NewController returns a Controller with no bindings and every button released.
func NewController() *Controller {
	c := &Controller{logger: noopLogger{}}
	c.rearm()
	return c
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// rearm primes every trigger high so a button already held when a
// session begins does not fire until it is released and pressed again.
// Caller must hold c.mu or own c exclusively.
func (c *Controller) rearm() {
	for i := range c.triggers {
		t := &c.triggers[i]
		t.OnRising(nil)
		t.OnFalling(nil)
		t.Handle(1)

		idx := i
		t.OnRising(func() { c.buttonPressed(idx) })
		t.OnFalling(func() { c.buttonReleased(idx) })
	}
}

// Caller must hold c.mu.
func (c *Controller) buttonPressed(idx int) {
	c.pressed[idx] = true
	if fn := c.actions[idx]; fn != nil {
		c.pending = append(c.pending, fn)
	}
}

// Caller must hold c.mu.
func (c *Controller) buttonReleased(idx int) {
	c.pressed[idx] = false
}

// OnButtonPressed binds fn to the rising edge of button idx, replacing any
// previous binding. Out of range indices are ignored.
func (c *Controller) OnButtonPressed(idx int, fn func()) {
	if idx < 0 || idx >= ButtonCount {
		return
	}
	c.mu.Lock()
	c.actions[idx] = fn
	c.mu.Unlock()
}

// OnAnalogValues binds fn to a group of analog channels. fn receives the
// channel values in the order given.
func (c *Controller) OnAnalogValues(channels []int, fn func(values []byte)) {
	c.mu.Lock()
	c.analog = append(c.analog, analogBinding{channels: slices.Clone(channels), action: fn})
	c.mu.Unlock()
}

// IsButtonPressed reports the latest state of button idx.
func (c *Controller) IsButtonPressed(idx int) bool {
	if idx < 0 || idx >= ButtonCount {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressed[idx]
}

// AnalogValue returns the latest value of channel idx, or 0 when the last
// frame did not carry it.
func (c *Controller) AnalogValue(idx int) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.current) {
		return 0
	}
	return c.current[idx]
}

// Tick processes one frame. An analog group fires when any of its channels
// is off centre or when its values changed since the previous frame. Each
// button feeds its edge trigger. Callbacks run on the calling goroutine
// after the internal lock is released.
func (c *Controller) Tick(frame Frame) {
	c.mu.Lock()
	c.previous = c.current
	c.current = slices.Clone(frame.Analog)

	for _, b := range c.analog {
		values, ok := pick(c.current, b.channels)
		if !ok {
			c.logger.Warn("skipping analog binding, channel missing from frame", "channels", b.channels)
			continue
		}
		prev, _ := pick(c.previous, b.channels)
		if !allCentered(values) || !slices.Equal(values, prev) {
			action := b.action
			c.pending = append(c.pending, func() { action(values) })
		}
	}

	for i := range c.triggers {
		level := 0
		if frame.Buttons[i] {
			level = 1
		}
		c.triggers[i].Handle(level)
	}

	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Reset drops all bindings and input state and rearms the triggers.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("remote controller reset")
	c.analog = nil
	c.current = nil
	c.previous = nil
	c.actions = [ButtonCount]func(){}
	c.rearm()
	c.pressed = [ButtonCount]bool{}
	c.pending = nil
}

// pick returns the values at channels, or false if any is out of range.
// A nil or short source yields (nil, false).
func pick(src []byte, channels []int) ([]byte, bool) {
	out := make([]byte, 0, len(channels))
	for _, ch := range channels {
		if ch < 0 || ch >= len(src) {
			return nil, false
		}
		out = append(out, src[ch])
	}
	return out, true
}

func allCentered(values []byte) bool {
	for _, v := range values {
		if v != AnalogCenter {
			return false
		}
	}
	return true
}
