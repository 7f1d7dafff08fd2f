package mcu

import (
	"context"
	"fmt"
	"sync"
)

// SlotCount is the number of status updater slots.
const SlotCount = 32

// Fixed slot assignments.
const (
	SlotBattery byte = 10
	SlotAxl     byte = 11
	SlotGyro    byte = 12
	SlotYaw     byte = 13
)

// MotorSlot returns the slot of 1-based motor port.
func MotorSlot(port int) byte {
	return byte(port - 1) //nolint:gosec // Ports are 1..6
}

// SensorSlot returns the slot of 1-based sensor port.
func SensorSlot(port int) byte {
	return byte(port - 1 + 6) //nolint:gosec // Ports are 1..4
}

// SlotHandler receives the payload of one slot.
type SlotHandler func(payload []byte)

// StatusUpdaterControl is the subset of Control the updater drives.
type StatusUpdaterControl interface {
	StatusUpdaterReset(ctx context.Context) error
	StatusUpdaterControl(ctx context.Context, slot byte, enabled bool) error
	StatusUpdaterRead(ctx context.Context) ([]byte, error)
}

// StatusUpdater enables status slots and dispatches their batched data.
type StatusUpdater struct {
	control StatusUpdaterControl
	logger  Logger

	mu       sync.Mutex
	handlers [SlotCount]SlotHandler
}

// NewStatusUpdater returns an updater with every slot disabled.
func NewStatusUpdater(control StatusUpdaterControl) *StatusUpdater {
	return &StatusUpdater{control: control, logger: noopLogger{}}
}

// SetLogger sets the logger for the updater.
func (u *StatusUpdater) SetLogger(logger Logger) {
	u.logger = logger
}

// Reset disables every slot locally and on the MCU.
func (u *StatusUpdater) Reset(ctx context.Context) error {
	u.mu.Lock()
	u.handlers = [SlotCount]SlotHandler{}
	u.mu.Unlock()

	u.logger.Debug("status updater reset")
	return u.control.StatusUpdaterReset(ctx)
}

// SetSlot installs handler for slot, enabling it on the MCU if it was
// disabled. A nil handler disables the slot.
func (u *StatusUpdater) SetSlot(ctx context.Context, slot byte, handler SlotHandler) error {
	if int(slot) >= SlotCount {
		return fmt.Errorf("mcu: status slot %d out of range", slot)
	}

	u.mu.Lock()
	wasEnabled := u.handlers[slot] != nil
	u.handlers[slot] = handler
	u.mu.Unlock()

	switch {
	case handler != nil && !wasEnabled:
		u.logger.Debug("status slot enabled", "slot", slot)
		return u.control.StatusUpdaterControl(ctx, slot, true)
	case handler == nil && wasEnabled:
		u.logger.Debug("status slot disabled", "slot", slot)
		return u.control.StatusUpdaterControl(ctx, slot, false)
	}
	return nil
}

// Enabled reports whether slot has a handler.
func (u *StatusUpdater) Enabled(slot byte) bool {
	if int(slot) >= SlotCount {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.handlers[slot] != nil
}

// Read fetches the TLV stream and dispatches each slot payload.
// Entries that overrun the stream are dropped.
func (u *StatusUpdater) Read(ctx context.Context) error {
	data, err := u.control.StatusUpdaterRead(ctx)
	if err != nil {
		return err
	}
	u.Dispatch(data)
	return nil
}

// Dispatch parses a [slot][length][payload]... stream.
func (u *StatusUpdater) Dispatch(data []byte) {
	u.mu.Lock()
	handlers := u.handlers
	u.mu.Unlock()

	for idx := 0; idx < len(data); {
		if idx+2 > len(data) {
			u.logger.Warn("status updater: truncated slot header")
			return
		}
		slot := int(data[idx])
		start := idx + 2
		end := start + int(data[idx+1])

		if end > len(data) {
			u.logger.Warn("status updater: invalid slot length", "slot", slot)
		} else if slot < SlotCount && handlers[slot] != nil {
			handlers[slot](data[start:end])
		}
		idx = end
	}
}
