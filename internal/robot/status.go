package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/rover-core/internal/event"
)

// RobotStatus is the lifecycle state of the robot.
type RobotStatus int

// Robot states.
const (
	StatusStartingUp RobotStatus = iota
	StatusNotConfigured
	StatusConfigured
	StatusConfiguring
	StatusUpdating
	StatusStopped
)

func (s RobotStatus) String() string {
	switch s {
	case StatusStartingUp:
		return "StartingUp"
	case StatusNotConfigured:
		return "NotConfigured"
	case StatusConfigured:
		return "Configured"
	case StatusConfiguring:
		return "Configuring"
	case StatusUpdating:
		return "Updating"
	case StatusStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ControllerStatus is the state of the remote controller link.
type ControllerStatus int

// Controller states.
const (
	ControllerNotConnected ControllerStatus = iota
	ControllerConnectedNoControl
	ControllerControlled
)

func (s ControllerStatus) String() string {
	switch s {
	case ControllerNotConnected:
		return "NotConnected"
	case ControllerConnectedNoControl:
		return "ConnectedNoControl"
	case ControllerControlled:
		return "Controlled"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Master LED patterns understood by the MCU.
const (
	masterLedUnknown       byte = 0
	masterLedNotConfigured byte = 1
	masterLedConfigured    byte = 2
	masterLedControlled    byte = 3
	masterLedConfiguring   byte = 4
	masterLedUpdating      byte = 5
)

// StatusLeds drives the two status LEDs. *mcu.Control implements it.
type StatusLeds interface {
	SetMasterStatus(ctx context.Context, status byte) error
	SetBluetoothStatus(ctx context.Context, connected bool) error
}

// StatusIndicator mirrors the robot and controller state on the status
// LEDs. An LED is only written when its pattern changes. Once Stopped the
// robot status no longer changes.
type StatusIndicator struct {
	// RobotStatusChanged fires after every accepted robot status change.
	RobotStatusChanged event.Event[RobotStatus]

	// ControllerStatusChanged fires after every controller status change.
	ControllerStatusChanged event.Event[ControllerStatus]

	leds   StatusLeds
	logger Logger

	mu         sync.Mutex
	robot      RobotStatus
	controller ControllerStatus
	master     byte
	bluetooth  bool
}

// NewStatusIndicator returns an indicator in StartingUp / NotConnected.
func NewStatusIndicator(leds StatusLeds) *StatusIndicator {
	return &StatusIndicator{
		leds:       leds,
		logger:     noopLogger{},
		robot:      StatusStartingUp,
		controller: ControllerNotConnected,
		master:     masterLedNotConfigured,
	}
}

// SetLogger sets the logger for the indicator.
func (s *StatusIndicator) SetLogger(logger Logger) {
	s.logger = logger
}

// RobotStatus returns the current robot status.
func (s *StatusIndicator) RobotStatus() RobotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.robot
}

// ControllerStatus returns the current controller status.
func (s *StatusIndicator) ControllerStatus() ControllerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// SetRobotStatus changes the robot status unless the robot is Stopped.
func (s *StatusIndicator) SetRobotStatus(ctx context.Context, status RobotStatus) error {
	s.mu.Lock()
	s.logger.Info("robot status change", "from", s.robot.String(), "to", status.String())
	if s.robot == StatusStopped {
		s.mu.Unlock()
		return nil
	}
	s.robot = status
	err := s.updateLeds(ctx)
	s.mu.Unlock()

	s.RobotStatusChanged.Emit(status)
	return err
}

// SetControllerStatus changes the controller status.
func (s *StatusIndicator) SetControllerStatus(ctx context.Context, status ControllerStatus) error {
	s.mu.Lock()
	s.logger.Info("controller status change", "from", s.controller.String(), "to", status.String())
	s.controller = status
	err := s.updateLeds(ctx)
	s.mu.Unlock()

	s.ControllerStatusChanged.Emit(status)
	return err
}

// Update resends both LED patterns, for use after the MCU was reset.
func (s *StatusIndicator) Update(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.leds.SetMasterStatus(ctx, s.master); err != nil {
		return err
	}
	return s.leds.SetBluetoothStatus(ctx, s.bluetooth)
}

// updateLeds requires s.mu.
func (s *StatusIndicator) updateLeds(ctx context.Context) error {
	switch s.robot {
	case StatusConfigured:
		if s.controller == ControllerControlled {
			if err := s.setMaster(ctx, masterLedControlled); err != nil {
				return err
			}
		} else if err := s.setMaster(ctx, masterLedConfigured); err != nil {
			return err
		}
	case StatusConfiguring:
		if err := s.setMaster(ctx, masterLedConfiguring); err != nil {
			return err
		}
	case StatusUpdating:
		if err := s.setMaster(ctx, masterLedUpdating); err != nil {
			return err
		}
	case StatusNotConfigured:
		if err := s.setMaster(ctx, masterLedNotConfigured); err != nil {
			return err
		}
	case StatusStopped:
		// The MCU decides on its own what to show after we stop.
	default:
		if err := s.setMaster(ctx, masterLedUnknown); err != nil {
			return err
		}
	}

	return s.setBluetooth(ctx, s.controller != ControllerNotConnected)
}

func (s *StatusIndicator) setMaster(ctx context.Context, value byte) error {
	if value == s.master {
		return nil
	}
	s.master = value
	return s.leds.SetMasterStatus(ctx, value)
}

func (s *StatusIndicator) setBluetooth(ctx context.Context, connected bool) error {
	if connected == s.bluetooth {
		return nil
	}
	s.bluetooth = connected
	return s.leds.SetBluetoothStatus(ctx, connected)
}
