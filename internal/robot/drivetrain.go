package robot

import (
	"context"
	"sync"

	"github.com/nerrad567/rover-core/internal/mcu"
)

// Drivetrain roles of a motor port.
const (
	roleNotAssigned byte = 0
	roleLeft        byte = 1
	roleRight       byte = 2
)

// DrivetrainControl is the MCU command subset the drivetrain uses.
type DrivetrainControl interface {
	ConfigureDrivetrain(ctx context.Context, drivetrainType byte, motors []byte) error
	DrivetrainSpeed(ctx context.Context, left, right float32, powerLimit int8) error
	DrivetrainPosition(ctx context.Context, left, right int32, leftSpeed, rightSpeed float32, powerLimit int8) error
	DrivetrainTurn(ctx context.Context, angle int32, wheelSpeed float32, powerLimit int8) error
}

// Drivetrain is a differential drive built from motor ports.
type Drivetrain struct {
	control    DrivetrainControl
	motorCount int
	logger     Logger

	mu     sync.Mutex
	motors []*Port
	left   []int
	right  []int
}

// NewDrivetrain returns an empty drivetrain over motorCount ports.
func NewDrivetrain(control DrivetrainControl, motorCount int) *Drivetrain {
	return &Drivetrain{control: control, motorCount: motorCount, logger: noopLogger{}}
}

// SetLogger sets the logger for the drivetrain.
func (d *Drivetrain) SetLogger(logger Logger) {
	d.logger = logger
}

// Reset removes every motor and sends the empty assignment.
func (d *Drivetrain) Reset(ctx context.Context) error {
	d.mu.Lock()
	d.motors, d.left, d.right = nil, nil, nil
	d.mu.Unlock()
	return d.Configure(ctx)
}

// AddLeft adds a motor to the left side.
func (d *Drivetrain) AddLeft(p *Port) {
	d.logger.Debug("drivetrain: add motor to left side", "port", p.ID())
	d.mu.Lock()
	d.motors = append(d.motors, p)
	d.left = append(d.left, p.ID())
	d.mu.Unlock()
}

// AddRight adds a motor to the right side.
func (d *Drivetrain) AddRight(p *Port) {
	d.logger.Debug("drivetrain: add motor to right side", "port", p.ID())
	d.mu.Lock()
	d.motors = append(d.motors, p)
	d.right = append(d.right, p.ID())
	d.mu.Unlock()
}

// Assignment returns the role of every motor port, index 0 for port 1.
func (d *Drivetrain) Assignment() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	roles := make([]byte, d.motorCount)
	for i := range roles {
		roles[i] = roleNotAssigned
	}
	for _, id := range d.left {
		if id >= 1 && id <= d.motorCount {
			roles[id-1] = roleLeft
		}
	}
	for _, id := range d.right {
		if id >= 1 && id <= d.motorCount {
			roles[id-1] = roleRight
		}
	}
	return roles
}

// Configure sends the side assignment to the MCU.
func (d *Drivetrain) Configure(ctx context.Context) error {
	return d.control.ConfigureDrivetrain(ctx, mcu.DrivetrainDifferential, d.Assignment())
}

// IsMoving reports whether any drivetrain motor moves.
func (d *Drivetrain) IsMoving() bool {
	d.mu.Lock()
	motors := append([]*Port(nil), d.motors...)
	d.mu.Unlock()

	for _, m := range motors {
		if m.Motor().IsMoving() {
			return true
		}
	}
	return false
}

// SetSpeeds requests wheel speeds in degrees per second. A zero power
// limit means no limit.
func (d *Drivetrain) SetSpeeds(ctx context.Context, left, right float32, powerLimit int8) error {
	return d.control.DrivetrainSpeed(ctx, left, right, powerLimit)
}

// Move requests relative wheel travel in degrees.
func (d *Drivetrain) Move(ctx context.Context, left, right int32, leftSpeed, rightSpeed float32, powerLimit int8) error {
	return d.control.DrivetrainPosition(ctx, left, right, leftSpeed, rightSpeed, powerLimit)
}

// Turn requests an in-place turn; a positive angle turns counter-clockwise.
func (d *Drivetrain) Turn(ctx context.Context, angle int32, wheelSpeed float32, powerLimit int8) error {
	return d.control.DrivetrainTurn(ctx, angle, wheelSpeed, powerLimit)
}
