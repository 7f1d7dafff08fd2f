package robot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// RingLedScenario is a built-in LED ring animation.
type RingLedScenario byte

// LED ring scenarios.
const (
	RingLedOff            RingLedScenario = 0
	RingLedUserFrame      RingLedScenario = 1
	RingLedColorWheel     RingLedScenario = 2
	RingLedColorFade      RingLedScenario = 3
	RingLedBusyIndicator  RingLedScenario = 4
	RingLedBreathingGreen RingLedScenario = 5
)

// ErrInvalidColor is returned for a colour that is not "#rrggbb".
var ErrInvalidColor = errors.New("robot: invalid colour")

// RingLedScenarios returns the scenario names exposed to scripts.
func RingLedScenarios() map[string]int {
	return map[string]int{
		"Off":            int(RingLedOff),
		"UserFrame":      int(RingLedUserFrame),
		"ColorWheel":     int(RingLedColorWheel),
		"ColorFade":      int(RingLedColorFade),
		"BusyIndicator":  int(RingLedBusyIndicator),
		"BreathingGreen": int(RingLedBreathingGreen),
	}
}

// RingLedControl is the MCU command subset the LED ring uses.
type RingLedControl interface {
	SetRingLedScenario(ctx context.Context, scenario byte) error
	SetRingLedUserFrame(ctx context.Context, colors []uint32) error
}

// RingLed is the LED ring.
type RingLed struct {
	control RingLedControl
	count   int

	mu       sync.Mutex
	scenario RingLedScenario
}

// NewRingLed returns a ring of count LEDs, initially off.
func NewRingLed(control RingLedControl, count int) *RingLed {
	return &RingLed{control: control, count: count}
}

// Count returns the number of LEDs.
func (r *RingLed) Count() int {
	return r.count
}

// Scenario returns the active scenario.
func (r *RingLed) Scenario() RingLedScenario {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scenario
}

// SetScenario starts a built-in scenario.
func (r *RingLed) SetScenario(ctx context.Context, s RingLedScenario) error {
	r.mu.Lock()
	r.scenario = s
	r.mu.Unlock()
	return r.control.SetRingLedScenario(ctx, byte(s))
}

// DisplayUserFrame shows one colour per LED.
func (r *RingLed) DisplayUserFrame(ctx context.Context, colors []uint32) error {
	r.mu.Lock()
	r.scenario = RingLedUserFrame
	r.mu.Unlock()
	return r.control.SetRingLedUserFrame(ctx, colors)
}

// ParseColor decodes "#rrggbb" into a 24 bit value.
func ParseColor(s string) (uint32, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return uint32(v), nil
}
