package robot

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
)

// MotorConfig holds the controller settings sent to a DcMotor port.
type MotorConfig struct {
	PositionLimits [2]int32

	// PositionController is P, I, D, lower speed limit, upper speed limit.
	PositionController [5]float32

	// SpeedController is P, I, D, lower power limit, upper power limit.
	SpeedController [5]float32

	// EncoderResolution is ticks per revolution; negative reverses the motor.
	EncoderResolution int16
}

// Encode returns the little-endian port configuration payload.
func (c MotorConfig) Encode() []byte {
	b := make([]byte, 0, 2*4+10*4+2)
	b = binary.LittleEndian.AppendUint32(b, uint32(c.PositionLimits[0])) //nolint:gosec // Two's complement on the wire
	b = binary.LittleEndian.AppendUint32(b, uint32(c.PositionLimits[1])) //nolint:gosec // Two's complement on the wire
	for _, f := range c.PositionController {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	for _, f := range c.SpeedController {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return binary.LittleEndian.AppendUint16(b, uint16(c.EncoderResolution)) //nolint:gosec // Two's complement on the wire
}

// MotorStatus is the last status reported by a motor.
type MotorStatus struct {
	Position int32   `json:"position"`
	Speed    float32 `json:"speed"`
	Power    int8    `json:"power"`
}

// PositionMode selects how SetPosition interprets its target.
type PositionMode byte

// Position modes, as encoded in the control request.
const (
	PositionAbsolute PositionMode = 2
	PositionRelative PositionMode = 3
)

// Motor control request kinds.
const (
	controlPower byte = 0
	controlSpeed byte = 1
)

// Limit optionally bounds speed and power of a motor request.
type Limit struct {
	Speed    float32
	Power    float32
	HasSpeed bool
	HasPower bool
}

// NoLimit leaves speed and power to the MCU defaults.
var NoLimit = Limit{}

// SpeedLimit bounds the speed, in degrees per second.
func SpeedLimit(dps float32) Limit {
	return Limit{Speed: dps, HasSpeed: true}
}

// PowerLimit bounds the power, in percent.
func PowerLimit(percent float32) Limit {
	return Limit{Power: percent, HasPower: true}
}

// MotorDriver is the motor variant of a port.
type MotorDriver interface {
	SetSpeed(ctx context.Context, dps float32, limit Limit) error
	SetPosition(ctx context.Context, position int32, mode PositionMode, limit Limit) error
	SetPower(ctx context.Context, power int8) error
	Status() MotorStatus
	IsMoving() bool
}

// nullMotor is the driver of a port that is not a motor.
type nullMotor struct{}

func (nullMotor) SetSpeed(context.Context, float32, Limit) error                { return nil }
func (nullMotor) SetPosition(context.Context, int32, PositionMode, Limit) error { return nil }
func (nullMotor) SetPower(context.Context, int8) error                          { return nil }
func (nullMotor) Status() MotorStatus                                           { return MotorStatus{} }
func (nullMotor) IsMoving() bool                                                { return false }

// DcMotor drives a DC motor with an encoder.
type DcMotor struct {
	port *Port

	mu     sync.Mutex
	status MotorStatus

	// posReached is nil unless the last request was a position request
	// and the MCU reports whether the target was reached.
	posReached *bool
}

func newDcMotor(ctx context.Context, port *Port, cfg MotorConfig) (*DcMotor, error) {
	m := &DcMotor{port: port}
	port.handler.logger.Debug("sending motor configuration", "port", port.id)
	if err := port.handler.control.SetPortConfig(ctx, port.handler.kind, byte(port.id), cfg.Encode()); err != nil { //nolint:gosec // Port ids are small
		return nil, err
	}
	return m, nil
}

func (m *DcMotor) control(ctx context.Context, request []byte, positional bool) error {
	m.mu.Lock()
	if positional {
		reached := false
		m.posReached = &reached
	} else {
		m.posReached = nil
	}
	m.mu.Unlock()
	return m.port.handler.control.SetMotorControl(ctx, byte(m.port.id), request) //nolint:gosec // Port ids are small
}

// SetSpeed requests a speed in degrees per second. Only limit.Power is used.
func (m *DcMotor) SetSpeed(ctx context.Context, dps float32, limit Limit) error {
	req := []byte{controlSpeed}
	req = binary.LittleEndian.AppendUint32(req, math.Float32bits(dps))
	if limit.HasPower {
		req = binary.LittleEndian.AppendUint32(req, math.Float32bits(limit.Power))
	}
	return m.control(ctx, req, false)
}

// SetPosition requests a target position in degrees.
func (m *DcMotor) SetPosition(ctx context.Context, position int32, mode PositionMode, limit Limit) error {
	req := []byte{byte(mode)}
	req = binary.LittleEndian.AppendUint32(req, uint32(position)) //nolint:gosec // Two's complement on the wire

	switch {
	case limit.HasSpeed && limit.HasPower:
		req = binary.LittleEndian.AppendUint32(req, math.Float32bits(limit.Speed))
		req = binary.LittleEndian.AppendUint32(req, math.Float32bits(limit.Power))
	case limit.HasSpeed:
		req = append(req, 1)
		req = binary.LittleEndian.AppendUint32(req, math.Float32bits(limit.Speed))
	case limit.HasPower:
		req = append(req, 0)
		req = binary.LittleEndian.AppendUint32(req, math.Float32bits(limit.Power))
	}
	return m.control(ctx, req, true)
}

// SetPower drives the motor open loop at power percent.
func (m *DcMotor) SetPower(ctx context.Context, power int8) error {
	return m.control(ctx, []byte{controlPower, byte(power)}, false)
}

// Status returns the last reported status.
func (m *DcMotor) Status() MotorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsMoving reports whether the motor is still turning or, after a
// position request, has not reached its target yet.
func (m *DcMotor) IsMoving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	speed := math.Round(float64(m.status.Speed)*100) / 100
	stopped := speed == 0 && math.Abs(float64(m.status.Power)) < 80
	if m.posReached == nil {
		return !stopped
	}
	return !(*m.posReached && stopped)
}

// UpdateStatus decodes a 9 or 10 byte status slot. Other lengths are
// logged and ignored.
func (m *DcMotor) UpdateStatus(data []byte) {
	if len(data) != 9 && len(data) != 10 {
		m.port.handler.logger.Warn("unexpected motor status length", "port", m.port.id, "length", len(data))
		return
	}

	status := MotorStatus{
		Position: int32(binary.LittleEndian.Uint32(data[0:4])), //nolint:gosec // Two's complement on the wire
		Speed:    math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
		Power:    int8(data[8]), //nolint:gosec // Signed on the wire
	}

	m.mu.Lock()
	m.status = status
	if len(data) == 10 {
		reached := data[9] != 0
		m.posReached = &reached
	} else {
		m.posReached = nil
	}
	m.mu.Unlock()

	m.port.MotorStatusChanged.Emit(status)
}
