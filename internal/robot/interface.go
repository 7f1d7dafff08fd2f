package robot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/rover-core/internal/resource"
	"github.com/nerrad567/rover-core/internal/scripting"
)

// Script API errors.
var (
	// ErrInvalidArgument is returned for a direction, unit or index the
	// call does not accept.
	ErrInvalidArgument = errors.New("robot: invalid argument")

	// ErrSensorTimeout is returned when a sensor has no data in time.
	ErrSensorTimeout = errors.New("robot: sensor read timed out")
)

// Values of the "Motor" script global.
const (
	DirectionFwd   = 0
	DirectionBack  = 1
	DirectionLeft  = 2
	DirectionRight = 3

	UnitRot       = 0
	UnitSec       = 1
	UnitDeg       = 2
	UnitTurnAngle = 3

	UnitSpeedRPM   = 0
	UnitSpeedPower = 1

	ActionStopAndHold = 0
	ActionRelease     = 1
)

// MaxRPM is the speed used when only a power limit is given.
const MaxRPM = 150

const (
	moveSettleDelay   = 200 * time.Millisecond
	sensorPollDelay   = 100 * time.Millisecond
	sensorReadTimeout = 2 * time.Second
)

// MotorConstants returns the "Motor" script global.
func MotorConstants() map[string]int {
	return map[string]int{
		"DIRECTION_FWD":        DirectionFwd,
		"DIRECTION_BACK":       DirectionBack,
		"DIRECTION_LEFT":       DirectionLeft,
		"DIRECTION_RIGHT":      DirectionRight,
		"UNIT_ROT":             UnitRot,
		"UNIT_SEC":             UnitSec,
		"UNIT_DEG":             UnitDeg,
		"UNIT_TURN_ANGLE":      UnitTurnAngle,
		"UNIT_SPEED_RPM":       UnitSpeedRPM,
		"UNIT_SPEED_PWR":       UnitSpeedPower,
		"ACTION_STOP_AND_HOLD": ActionStopAndHold,
		"ACTION_RELEASE":       ActionRelease,
	}
}

// Resource names.
const (
	ResourceLedRing    = "led_ring"
	ResourceDrivetrain = "drivetrain"
	ResourceSound      = "sound"
)

// MotorResource returns the resource name of motor port id.
func MotorResource(id int) string { return fmt.Sprintf("motor_%d", id) }

// SensorResource returns the resource name of sensor port id.
func SensorResource(id int) string { return fmt.Sprintf("sensor_%d", id) }

func rpmToDPS(rpm float64) float32 {
	return float32(rpm * 6)
}

func powerOf(v float64) int8 {
	return int8(scripting.Clip(math.Round(v), -100, 100))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// hwContext is the context for hardware commands issued by a script.
// Commands are not aborted half way when the script is stopped.
func hwContext(ctl *scripting.Control) context.Context {
	if ctl == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctl.Context())
}

func sleep(ctl *scripting.Control, d time.Duration) error {
	if ctl == nil {
		time.Sleep(d)
		return nil
	}
	return ctl.Sleep(d)
}

// wrapper takes one resource with a fixed priority.
type wrapper struct {
	res      *resource.Resource
	priority int
}

func (w wrapper) take(ctl *scripting.Control) (*resource.Handle, error) {
	if ctl != nil {
		if err := ctl.CheckTerminated(); err != nil {
			return nil, err
		}
	}
	return w.res.Request(w.priority, nil), nil
}

// ifAvailable runs fn if the resource can be taken and releases it after.
// Not getting the resource is not an error.
func (w wrapper) ifAvailable(ctl *scripting.Control, fn func(h *resource.Handle) error) error {
	h, err := w.take(ctl)
	if err != nil || h == nil {
		return err
	}
	defer h.Release()
	return fn(h)
}

// using runs fn as one uninterruptible action on the resource.
func (w wrapper) using(ctl *scripting.Control, fn func() error) error {
	return w.ifAvailable(ctl, func(h *resource.Handle) error {
		return runHeld(h, fn)
	})
}

func runHeld(h *resource.Handle, fn func() error) error {
	var err error
	h.RunUninterruptible(func() { err = fn() })
	return err
}

func waitWhileMoving(ctl *scripting.Control, h *resource.Handle, moving func() bool) error {
	if err := sleep(ctl, moveSettleDelay); err != nil {
		return err
	}
	for !h.IsInterrupted() && moving() {
		if err := sleep(ctl, moveSettleDelay); err != nil {
			return err
		}
	}
	return nil
}

func forwardSign(direction int) (float64, error) {
	switch direction {
	case DirectionFwd:
		return 1, nil
	case DirectionBack:
		return -1, nil
	default:
		return 0, fmt.Errorf("%w: direction %d", ErrInvalidArgument, direction)
	}
}

// ============================================================================
// Motors
// ============================================================================

// MotorWrapper exposes one motor port to a script.
type MotorWrapper struct {
	wrapper
	port *Port
}

// ID returns the port number.
func (m *MotorWrapper) ID() int { return m.port.ID() }

// Status returns the last reported motor status.
func (m *MotorWrapper) Status() MotorStatus { return m.port.Motor().Status() }

// Configure switches the port to a motor configuration.
func (m *MotorWrapper) Configure(ctl *scripting.Control, name string) error {
	return m.port.Configure(hwContext(ctl), name)
}

func (m *MotorWrapper) limit(limit float64, unit int) (Limit, error) {
	switch unit {
	case UnitSpeedRPM:
		return SpeedLimit(rpmToDPS(limit)), nil
	case UnitSpeedPower:
		return PowerLimit(float32(limit)), nil
	default:
		return Limit{}, fmt.Errorf("%w: speed unit %d", ErrInvalidArgument, unit)
	}
}

// Move turns the motor by an amount of degrees, rotations or seconds,
// limited by speed (rpm) or power (percent), and waits until done.
func (m *MotorWrapper) Move(ctl *scripting.Control, direction int, amount float64, unitAmount int, limit float64, unitLimit int) error {
	sign, err := forwardSign(direction)
	if err != nil {
		return err
	}
	ctx := hwContext(ctl)

	var start func() error
	switch unitAmount {
	case UnitDeg, UnitRot:
		lim, err := m.limit(limit, unitLimit)
		if err != nil {
			return err
		}
		degrees := amount
		if unitAmount == UnitRot {
			degrees *= 360
		}
		target := int32(math.Round(sign * degrees))
		start = func() error { return m.port.Motor().SetPosition(ctx, target, PositionRelative, lim) }

	case UnitSec:
		switch unitLimit {
		case UnitSpeedRPM:
			start = func() error { return m.port.Motor().SetSpeed(ctx, rpmToDPS(sign*limit), NoLimit) }
		case UnitSpeedPower:
			start = func() error {
				return m.port.Motor().SetSpeed(ctx, rpmToDPS(sign*MaxRPM), PowerLimit(float32(limit)))
			}
		default:
			return fmt.Errorf("%w: speed unit %d", ErrInvalidArgument, unitLimit)
		}

	default:
		return fmt.Errorf("%w: amount unit %d", ErrInvalidArgument, unitAmount)
	}

	return m.ifAvailable(ctl, func(h *resource.Handle) error {
		if err := runHeld(h, start); err != nil {
			return err
		}
		if unitAmount != UnitSec {
			return waitWhileMoving(ctl, h, func() bool { return m.port.Motor().IsMoving() })
		}
		if err := sleep(ctl, seconds(amount)); err != nil {
			return err
		}
		return runHeld(h, func() error { return m.port.Motor().SetSpeed(ctx, 0, NoLimit) })
	})
}

// Spin starts turning the motor at rpm or with a power limit, without waiting.
func (m *MotorWrapper) Spin(ctl *scripting.Control, direction int, rotation float64, unitRotation int) error {
	sign, err := forwardSign(direction)
	if err != nil {
		return err
	}
	ctx := hwContext(ctl)

	var fn func() error
	switch unitRotation {
	case UnitSpeedRPM:
		fn = func() error { return m.port.Motor().SetSpeed(ctx, rpmToDPS(sign*rotation), NoLimit) }
	case UnitSpeedPower:
		fn = func() error {
			return m.port.Motor().SetSpeed(ctx, rpmToDPS(sign*MaxRPM), PowerLimit(float32(rotation)))
		}
	default:
		return fmt.Errorf("%w: speed unit %d", ErrInvalidArgument, unitRotation)
	}
	return m.using(ctl, fn)
}

// Stop holds the motor in place or lets it coast.
func (m *MotorWrapper) Stop(ctl *scripting.Control, action int) error {
	ctx := hwContext(ctl)
	switch action {
	case ActionStopAndHold:
		return m.using(ctl, func() error { return m.port.Motor().SetSpeed(ctx, 0, NoLimit) })
	case ActionRelease:
		return m.using(ctl, func() error { return m.port.Motor().SetPower(ctx, 0) })
	default:
		return fmt.Errorf("%w: stop action %d", ErrInvalidArgument, action)
	}
}

// ============================================================================
// Sensors
// ============================================================================

// SensorWrapper exposes one sensor port to a script.
type SensorWrapper struct {
	wrapper
	port *Port
}

// ID returns the port number.
func (s *SensorWrapper) ID() int { return s.port.ID() }

// Configure switches the port to a sensor configuration.
func (s *SensorWrapper) Configure(ctl *scripting.Control, name string) error {
	return s.using(ctl, func() error { return s.port.Configure(hwContext(ctl), name) })
}

// Read returns the last converted value, waiting up to two seconds for
// the first one.
func (s *SensorWrapper) Read(ctl *scripting.Control) (any, error) {
	deadline := time.Now().Add(sensorReadTimeout)
	for {
		if ctl != nil {
			if err := ctl.CheckTerminated(); err != nil {
				return nil, err
			}
		}
		if v, ok := s.port.Sensor().Value(); ok {
			return v, nil
		}
		if err := sleep(ctl, sensorPollDelay); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: port %d", ErrSensorTimeout, s.port.ID())
		}
	}
}

// ============================================================================
// Drivetrain
// ============================================================================

// DrivetrainWrapper exposes the drivetrain to a script.
type DrivetrainWrapper struct {
	wrapper
	drivetrain *Drivetrain
}

// Drive moves forward or back by rotations or for seconds, at rpm or
// with a power limit, and waits until done.
func (d *DrivetrainWrapper) Drive(ctl *scripting.Control, direction int, rotation float64, unitRotation int, speed float64, unitSpeed int) error {
	sign, err := forwardSign(direction)
	if err != nil {
		return err
	}
	ctx := hwContext(ctl)
	dt := d.drivetrain

	var start func() error
	switch {
	case unitRotation == UnitRot && unitSpeed == UnitSpeedRPM:
		deg := int32(math.Round(360 * rotation * sign))
		start = func() error { return dt.Move(ctx, deg, deg, rpmToDPS(speed), rpmToDPS(speed), 0) }
	case unitRotation == UnitRot && unitSpeed == UnitSpeedPower:
		deg := int32(math.Round(360 * rotation * sign))
		start = func() error { return dt.Move(ctx, deg, deg, 0, 0, powerOf(speed)) }
	case unitRotation == UnitSec && unitSpeed == UnitSpeedRPM:
		v := rpmToDPS(speed * sign)
		start = func() error { return dt.SetSpeeds(ctx, v, v, 0) }
	case unitRotation == UnitSec && unitSpeed == UnitSpeedPower:
		v := rpmToDPS(MaxRPM * sign)
		start = func() error { return dt.SetSpeeds(ctx, v, v, powerOf(speed)) }
	default:
		return fmt.Errorf("%w: drive units %d/%d", ErrInvalidArgument, unitRotation, unitSpeed)
	}

	return d.run(ctl, start, unitRotation == UnitSec, rotation)
}

// Turn turns left or right by an angle or for seconds and waits until done.
func (d *DrivetrainWrapper) Turn(ctl *scripting.Control, direction int, rotation float64, unitRotation int, speed float64, unitSpeed int) error {
	var left, right, turn float64
	switch direction {
	case DirectionLeft:
		left, right, turn = -1, 1, 1
	case DirectionRight:
		left, right, turn = 1, -1, -1
	default:
		return fmt.Errorf("%w: direction %d", ErrInvalidArgument, direction)
	}
	ctx := hwContext(ctl)
	dt := d.drivetrain

	var start func() error
	switch {
	case unitRotation == UnitSec && unitSpeed == UnitSpeedRPM:
		start = func() error { return dt.SetSpeeds(ctx, rpmToDPS(speed*left), rpmToDPS(speed*right), 0) }
	case unitRotation == UnitSec && unitSpeed == UnitSpeedPower:
		start = func() error {
			return dt.SetSpeeds(ctx, rpmToDPS(MaxRPM*left), rpmToDPS(MaxRPM*right), powerOf(speed))
		}
	case unitRotation == UnitTurnAngle && unitSpeed == UnitSpeedRPM:
		angle := int32(math.Round(rotation * turn))
		start = func() error { return dt.Turn(ctx, angle, rpmToDPS(speed), 0) }
	case unitRotation == UnitTurnAngle && unitSpeed == UnitSpeedPower:
		angle := int32(math.Round(rotation * turn))
		start = func() error { return dt.Turn(ctx, angle, rpmToDPS(MaxRPM), powerOf(speed)) }
	default:
		return fmt.Errorf("%w: turn units %d/%d", ErrInvalidArgument, unitRotation, unitSpeed)
	}

	return d.run(ctl, start, unitRotation == UnitSec, rotation)
}

// run issues start, then either waits for the wheels to stop or, for
// timed moves, sleeps and stops them.
func (d *DrivetrainWrapper) run(ctl *scripting.Control, start func() error, timed bool, secs float64) error {
	return d.ifAvailable(ctl, func(h *resource.Handle) error {
		if err := runHeld(h, start); err != nil {
			return err
		}
		if !timed {
			return waitWhileMoving(ctl, h, d.drivetrain.IsMoving)
		}
		if err := sleep(ctl, seconds(secs)); err != nil {
			return err
		}
		ctx := hwContext(ctl)
		return runHeld(h, func() error { return d.drivetrain.SetSpeeds(ctx, 0, 0, 0) })
	})
}

// SetSpeeds sets the wheel speeds in degrees per second. The resource
// stays taken until both speeds are zero.
func (d *DrivetrainWrapper) SetSpeeds(left, right float64) error {
	h := d.res.Request(d.priority, nil)
	if h == nil {
		return nil
	}
	err := d.drivetrain.SetSpeeds(context.Background(), float32(left), float32(right), 0)
	if left == 0 && right == 0 {
		h.Release()
	}
	return err
}

// ============================================================================
// LED ring and sound
// ============================================================================

// RingLedWrapper exposes the LED ring to a script.
type RingLedWrapper struct {
	wrapper
	ring *RingLed

	mu    sync.Mutex
	frame []uint32
}

// Count returns the number of LEDs.
func (r *RingLedWrapper) Count() int { return r.ring.Count() }

// Scenario returns the active scenario.
func (r *RingLedWrapper) Scenario() RingLedScenario { return r.ring.Scenario() }

// SetScenario starts a built-in scenario.
func (r *RingLedWrapper) SetScenario(ctl *scripting.Control, s RingLedScenario) error {
	return r.using(ctl, func() error { return r.ring.SetScenario(hwContext(ctl), s) })
}

// Set colours the LEDs with 1-based indices and shows the user frame.
func (r *RingLedWrapper) Set(ctl *scripting.Control, indices []int, color string) error {
	rgb, err := ParseColor(color)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, idx := range indices {
		if idx < 1 || idx > len(r.frame) {
			r.mu.Unlock()
			return fmt.Errorf("%w: led index %d", ErrInvalidArgument, idx)
		}
		r.frame[idx-1] = rgb
	}
	frame := append([]uint32(nil), r.frame...)
	r.mu.Unlock()

	return r.using(ctl, func() error { return r.ring.DisplayUserFrame(hwContext(ctl), frame) })
}

// SoundWrapper exposes audio output to a script.
type SoundWrapper struct {
	wrapper
	sound *Sound
}

// PlayTune starts a tune if the sound channel is free.
func (s *SoundWrapper) PlayTune(ctl *scripting.Control, name string) error {
	return s.ifAvailable(ctl, func(*resource.Handle) error { return s.sound.PlayTune(name) })
}

// ============================================================================
// RobotInterface
// ============================================================================

// RobotInterface is the "robot" value of one script. Every actuator is
// taken through its resource with the script's priority.
type RobotInterface struct {
	robot *Robot

	motors      []*MotorWrapper
	motorNames  map[string]int
	sensors     []*SensorWrapper
	sensorNames map[string]int
	drivetrain  *DrivetrainWrapper
	led         *RingLedWrapper
	sound       *SoundWrapper
}

// NewRobotInterface builds the script API over robot.
//
// Parameters:
//   - robot: The hardware
//   - cfg: Configuration providing port names; may be nil
//   - resources: One resource per actuator, keyed by resource name
//   - priority: The script's priority
func NewRobotInterface(robot *Robot, cfg *Config, resources map[string]*resource.Resource, priority int) *RobotInterface {
	if cfg == nil {
		cfg = NewConfig()
	}
	ri := &RobotInterface{
		robot:       robot,
		motorNames:  cfg.Motors.Names,
		sensorNames: cfg.Sensors.Names,
	}

	for _, p := range robot.Motors().Ports() {
		ri.motors = append(ri.motors, &MotorWrapper{wrapper{resources[MotorResource(p.ID())], priority}, p})
	}
	for _, p := range robot.Sensors().Ports() {
		ri.sensors = append(ri.sensors, &SensorWrapper{wrapper{resources[SensorResource(p.ID())], priority}, p})
	}
	ri.drivetrain = &DrivetrainWrapper{wrapper{resources[ResourceDrivetrain], priority}, robot.Drivetrain()}
	ri.led = &RingLedWrapper{
		wrapper: wrapper{resources[ResourceLedRing], priority},
		ring:    robot.RingLed(),
		frame:   make([]uint32, robot.RingLed().Count()),
	}
	ri.sound = &SoundWrapper{wrapper{resources[ResourceSound], priority}, robot.Sound()}
	return ri
}

// Motors returns every motor port.
func (ri *RobotInterface) Motors() []*MotorWrapper { return ri.motors }

// Motor returns motor port id (1-based).
func (ri *RobotInterface) Motor(id int) (*MotorWrapper, error) {
	if id < 1 || id > len(ri.motors) {
		return nil, fmt.Errorf("%w: motor %d", ErrNoSuchPort, id)
	}
	return ri.motors[id-1], nil
}

// MotorByName returns the motor port given a name in the configuration.
func (ri *RobotInterface) MotorByName(name string) (*MotorWrapper, error) {
	id, ok := ri.motorNames[name]
	if !ok {
		return nil, fmt.Errorf("%w: motor %q", ErrNoSuchPort, name)
	}
	return ri.Motor(id)
}

// Sensors returns every sensor port.
func (ri *RobotInterface) Sensors() []*SensorWrapper { return ri.sensors }

// Sensor returns sensor port id (1-based).
func (ri *RobotInterface) Sensor(id int) (*SensorWrapper, error) {
	if id < 1 || id > len(ri.sensors) {
		return nil, fmt.Errorf("%w: sensor %d", ErrNoSuchPort, id)
	}
	return ri.sensors[id-1], nil
}

// SensorByName returns the sensor port given a name in the configuration.
func (ri *RobotInterface) SensorByName(name string) (*SensorWrapper, error) {
	id, ok := ri.sensorNames[name]
	if !ok {
		return nil, fmt.Errorf("%w: sensor %q", ErrNoSuchPort, name)
	}
	return ri.Sensor(id)
}

// Drivetrain returns the drivetrain.
func (ri *RobotInterface) Drivetrain() *DrivetrainWrapper { return ri.drivetrain }

// DrivetrainSpeeds returns the drivetrain as used by the drive builtins.
func (ri *RobotInterface) DrivetrainSpeeds() scripting.SpeedSetter { return ri.drivetrain }

// Led returns the LED ring.
func (ri *RobotInterface) Led() *RingLedWrapper { return ri.led }

// Sound returns the audio output.
func (ri *RobotInterface) Sound() *SoundWrapper { return ri.sound }

// PlayTune is a shorthand for Sound().PlayTune.
func (ri *RobotInterface) PlayTune(ctl *scripting.Control, name string) error {
	return ri.sound.PlayTune(ctl, name)
}

// SetVolume sets the output volume, 0..100.
func (ri *RobotInterface) SetVolume(ctl *scripting.Control, volume int) error {
	return ri.robot.Sound().SetVolume(hwContext(ctl), volume)
}

// StopAllMotors stops every motor with action.
func (ri *RobotInterface) StopAllMotors(ctl *scripting.Control, action int) error {
	for _, m := range ri.motors {
		if err := m.Stop(ctl, action); err != nil {
			return err
		}
	}
	return nil
}

// Time returns the time since the robot started.
func (ri *RobotInterface) Time() time.Duration {
	return time.Since(ri.robot.StartTime())
}
