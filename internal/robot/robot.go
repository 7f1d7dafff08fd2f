package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/rover-core/internal/event"
	"github.com/nerrad567/rover-core/internal/mcu"
)

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

// Hardware is the MCU command set the robot uses. *mcu.Control implements it.
type Hardware interface {
	StatusLeds
	PortControl
	DrivetrainControl
	RingLedControl
	mcu.StatusUpdaterControl

	Ping(ctx context.Context) error
	HardwareVersion(ctx context.Context) (mcu.Version, error)
	FirmwareVersion(ctx context.Context) (mcu.Version, error)
	PortAmount(ctx context.Context, kind mcu.PortKind) (int, error)
	PortTypes(ctx context.Context, kind mcu.PortKind) (map[string]byte, error)
	RingLedAmount(ctx context.Context) (int, error)
}

// Version identifies the hardware, firmware and software of the robot.
type Version struct {
	Hardware mcu.Version `json:"hw"`
	Firmware mcu.Version `json:"fw"`
	Software string      `json:"sw"`
}

// Robot is the hardware aggregate: ports, drivetrain, LED ring, sound,
// status LEDs and the MCU status stream.
type Robot struct {
	// BatteryChanged fires when the battery slot reports a new value.
	BatteryChanged event.Event[mcu.BatteryStatus]

	hw         Hardware
	version    Version
	startTime  time.Time
	status     *StatusIndicator
	updater    *mcu.StatusUpdater
	motors     *PortHandler
	sensors    *PortHandler
	drivetrain *Drivetrain
	ringLed    *RingLed
	sound      *Sound
	logger     Logger

	mu      sync.Mutex
	battery mcu.BatteryStatus
}

// NewRobot reads the MCU capabilities and builds the robot around them.
//
// Parameters:
//   - ctx: Bounds the MCU queries
//   - hw: MCU commands
//   - sound: Audio output; may be nil for a silent robot
//   - softwareVersion: Version string of this program
//   - logger: Optional logger
//
// Returns:
//   - *Robot: Robot in StartingUp state with every port unconfigured
//   - error: If the MCU could not be queried
func NewRobot(ctx context.Context, hw Hardware, sound *Sound, softwareVersion string, logger Logger) (*Robot, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if sound == nil {
		sound = NewSound(SoundConfig{})
	}

	hwVersion, err := hw.HardwareVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading hardware version: %w", err)
	}
	fwVersion, err := hw.FirmwareVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading firmware version: %w", err)
	}

	r := &Robot{
		hw:        hw,
		version:   Version{Hardware: hwVersion, Firmware: fwVersion, Software: softwareVersion},
		startTime: time.Now(),
		status:    NewStatusIndicator(hw),
		updater:   mcu.NewStatusUpdater(hw),
		sound:     sound,
		logger:    logger,
	}
	r.status.SetLogger(logger)
	r.updater.SetLogger(logger)

	logger.Info("robot versions",
		"hardware", hwVersion.String(),
		"firmware", fwVersion.String(),
		"software", softwareVersion,
	)

	if r.motors, err = r.newPortHandler(ctx, mcu.MotorPorts, MotorCatalog(), mcu.MotorSlot); err != nil {
		return nil, fmt.Errorf("reading motor ports: %w", err)
	}
	if r.sensors, err = r.newPortHandler(ctx, mcu.SensorPorts, SensorCatalog(), mcu.SensorSlot); err != nil {
		return nil, fmt.Errorf("reading sensor ports: %w", err)
	}

	leds, err := hw.RingLedAmount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ring led amount: %w", err)
	}
	r.ringLed = NewRingLed(hw, leds)

	r.drivetrain = NewDrivetrain(hw, r.motors.Count())
	r.drivetrain.SetLogger(logger)

	return r, nil
}

func (r *Robot) newPortHandler(ctx context.Context, kind mcu.PortKind, catalog *DriverCatalog, slot func(int) byte) (*PortHandler, error) {
	count, err := r.hw.PortAmount(ctx, kind)
	if err != nil {
		return nil, err
	}
	types, err := r.hw.PortTypes(ctx, kind)
	if err != nil {
		return nil, err
	}

	onChange := func(ctx context.Context, p *Port, name string) error {
		var handler mcu.SlotHandler
		if name != NotConfigured {
			handler = p.UpdateStatus
		}
		return r.updater.SetSlot(ctx, slot(p.ID()), handler)
	}

	h := NewPortHandler(kind, r.hw, catalog, types, count, onChange)
	h.SetLogger(r.logger)
	return h, nil
}

// Version returns the robot versions.
func (r *Robot) Version() Version { return r.version }

// StartTime returns when the robot was created.
func (r *Robot) StartTime() time.Time { return r.startTime }

// Status returns the status indicator.
func (r *Robot) Status() *StatusIndicator { return r.status }

// Motors returns the motor ports.
func (r *Robot) Motors() *PortHandler { return r.motors }

// Sensors returns the sensor ports.
func (r *Robot) Sensors() *PortHandler { return r.sensors }

// Drivetrain returns the drivetrain.
func (r *Robot) Drivetrain() *Drivetrain { return r.drivetrain }

// RingLed returns the LED ring.
func (r *Robot) RingLed() *RingLed { return r.ringLed }

// Sound returns the audio output.
func (r *Robot) Sound() *Sound { return r.sound }

// Battery returns the last battery reading.
func (r *Robot) Battery() mcu.BatteryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.battery
}

// Ping checks that the MCU answers.
func (r *Robot) Ping(ctx context.Context) error {
	return r.hw.Ping(ctx)
}

// UpdateStatus reads the MCU status stream and dispatches it to the slots.
func (r *Robot) UpdateStatus(ctx context.Context) error {
	return r.updater.Read(ctx)
}

// Reset returns the hardware to its unconfigured state: LED ring
// breathing green, only the battery slot enabled, drivetrain empty and
// every port unconfigured.
func (r *Robot) Reset(ctx context.Context) error {
	if err := r.ringLed.SetScenario(ctx, RingLedBreathingGreen); err != nil {
		return err
	}
	if err := r.updater.Reset(ctx); err != nil {
		return err
	}
	if err := r.updater.SetSlot(ctx, mcu.SlotBattery, r.processBattery); err != nil {
		return err
	}
	if err := r.drivetrain.Reset(ctx); err != nil {
		return err
	}
	if err := r.motors.Reset(ctx); err != nil {
		return err
	}
	if err := r.sensors.Reset(ctx); err != nil {
		return err
	}
	if err := r.status.SetRobotStatus(ctx, StatusNotConfigured); err != nil {
		return err
	}
	return r.status.Update(ctx)
}

func (r *Robot) processBattery(payload []byte) {
	battery, err := mcu.ParseBattery(payload)
	if err != nil {
		r.logger.Warn("invalid battery slot", "error", err)
		return
	}

	r.mu.Lock()
	changed := battery != r.battery
	r.battery = battery
	r.mu.Unlock()

	if changed {
		r.BatteryChanged.Emit(battery)
	}
}
