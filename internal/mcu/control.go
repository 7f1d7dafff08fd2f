package mcu

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Command ids.
const (
	cmdPing               byte = 0x00
	cmdHardwareVersion    byte = 0x01
	cmdFirmwareVersion    byte = 0x02
	cmdMasterStatus       byte = 0x04
	cmdBluetoothStatus    byte = 0x05
	cmdOperationMode      byte = 0x06
	cmdRebootToBootloader byte = 0x0B

	cmdMotorPortAmount  byte = 0x10
	cmdMotorPortTypes   byte = 0x11
	cmdSetMotorPortType byte = 0x12
	cmdMotorPortConfig  byte = 0x13
	cmdMotorPortControl byte = 0x14
	cmdMotorPortStatus  byte = 0x15

	cmdConfigureDrivetrain byte = 0x1A
	cmdDrivetrainRequest   byte = 0x1B

	cmdSensorPortAmount  byte = 0x20
	cmdSensorPortTypes   byte = 0x21
	cmdSetSensorPortType byte = 0x22
	cmdSensorPortConfig  byte = 0x23
	cmdSensorPortStatus  byte = 0x24

	cmdRingLedScenarioTypes byte = 0x30
	cmdRingLedSetScenario   byte = 0x31
	cmdRingLedAmount        byte = 0x32
	cmdRingLedUserFrame     byte = 0x33

	cmdStatusUpdaterReset   byte = 0x3A
	cmdStatusUpdaterControl byte = 0x3B
	cmdStatusUpdaterRead    byte = 0x3C

	cmdErrorMemoryCount byte = 0x3D
	cmdErrorMemoryRead  byte = 0x3E
	cmdErrorMemoryClear byte = 0x3F
	cmdErrorMemoryTest  byte = 0x40
)

// Drivetrain request kinds.
const (
	drivetrainPosition byte = 0
	drivetrainSpeed    byte = 1
	drivetrainTurn     byte = 3
)

// DrivetrainDifferential is the only drivetrain type the MCU supports.
const DrivetrainDifferential byte = 1

const errorRecordSize = 63

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

// Sender executes one command. *Transport implements it.
type Sender interface {
	Send(ctx context.Context, command byte, payload []byte) (Response, error)
}

// Control exposes the MCU command set.
type Control struct {
	sender Sender
	logger Logger
}

// NewControl returns a Control sending through sender.
func NewControl(sender Sender) *Control {
	return &Control{sender: sender, logger: noopLogger{}}
}

// SetLogger sets the logger for the control.
func (c *Control) SetLogger(logger Logger) {
	c.logger = logger
}

func (c *Control) call(ctx context.Context, command byte, payload []byte) ([]byte, error) {
	resp, err := c.sender.Send(ctx, command, payload)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case StatusOk:
		return resp.Payload, nil
	case StatusUnknownCommand:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, command)
	default:
		c.logger.Warn("mcu command error",
			"command", fmt.Sprintf("0x%02X", command),
			"status", resp.Status.String(),
			"payload_length", len(payload),
		)
		return nil, fmt.Errorf("%w: 0x%02X: %s", ErrCommandFailed, command, resp.Status)
	}
}

func (c *Control) callNoReply(ctx context.Context, command byte, payload []byte) error {
	_, err := c.call(ctx, command, payload)
	return err
}

func (c *Control) callByte(ctx context.Context, command byte) (byte, error) {
	out, err := c.call(ctx, command, nil)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: 0x%02X: expected 1 byte, got %d", ErrCommandFailed, command, len(out))
	}
	return out[0], nil
}

// ============================================================================
// Basic
// ============================================================================

// Ping checks that the MCU answers.
func (c *Control) Ping(ctx context.Context) error {
	return c.callNoReply(ctx, cmdPing, nil)
}

// HardwareVersion reads the board revision.
func (c *Control) HardwareVersion(ctx context.Context) (Version, error) {
	return c.readVersion(ctx, cmdHardwareVersion)
}

// FirmwareVersion reads the firmware version.
func (c *Control) FirmwareVersion(ctx context.Context) (Version, error) {
	return c.readVersion(ctx, cmdFirmwareVersion)
}

func (c *Control) readVersion(ctx context.Context, command byte) (Version, error) {
	out, err := c.call(ctx, command, nil)
	if err != nil {
		return Version{}, err
	}
	if !utf8.Valid(out) {
		return Version{}, fmt.Errorf("%w: not utf-8", ErrVersionFormat)
	}
	return ParseVersion(string(out))
}

// SetMasterStatus sets the master status LED pattern.
func (c *Control) SetMasterStatus(ctx context.Context, status byte) error {
	return c.callNoReply(ctx, cmdMasterStatus, []byte{status})
}

// SetBluetoothStatus sets the bluetooth status LED.
func (c *Control) SetBluetoothStatus(ctx context.Context, connected bool) error {
	return c.callNoReply(ctx, cmdBluetoothStatus, []byte{boolByte(connected)})
}

// OperationMode reads whether the MCU runs the application or the bootloader.
func (c *Control) OperationMode(ctx context.Context) (byte, error) {
	return c.callByte(ctx, cmdOperationMode)
}

// RebootToBootloader restarts the MCU into its bootloader.
func (c *Control) RebootToBootloader(ctx context.Context) error {
	return c.callNoReply(ctx, cmdRebootToBootloader, nil)
}

// ============================================================================
// Motor and sensor ports
// ============================================================================

// PortKind selects the motor or the sensor command group.
type PortKind int

// Port kinds.
const (
	MotorPorts PortKind = iota
	SensorPorts
)

func (k PortKind) commands() (amount, types, setType, config, status byte) {
	if k == SensorPorts {
		return cmdSensorPortAmount, cmdSensorPortTypes, cmdSetSensorPortType, cmdSensorPortConfig, cmdSensorPortStatus
	}
	return cmdMotorPortAmount, cmdMotorPortTypes, cmdSetMotorPortType, cmdMotorPortConfig, cmdMotorPortStatus
}

// PortAmount reads the number of ports of kind.
func (c *Control) PortAmount(ctx context.Context, kind PortKind) (int, error) {
	amount, _, _, _, _ := kind.commands()
	n, err := c.callByte(ctx, amount)
	return int(n), err
}

// PortTypes reads the driver types the MCU offers for kind, by name.
func (c *Control) PortTypes(ctx context.Context, kind PortKind) (map[string]byte, error) {
	_, types, _, _, _ := kind.commands()
	out, err := c.call(ctx, types, nil)
	if err != nil {
		return nil, err
	}
	return ParseStringList(out)
}

// SetPortType selects the MCU driver of a port.
func (c *Control) SetPortType(ctx context.Context, kind PortKind, port, typeID byte) error {
	_, _, setType, _, _ := kind.commands()
	return c.callNoReply(ctx, setType, []byte{port, typeID})
}

// SetPortConfig sends the driver configuration of a port.
func (c *Control) SetPortConfig(ctx context.Context, kind PortKind, port byte, config []byte) error {
	_, _, _, cfg, _ := kind.commands()
	return c.callNoReply(ctx, cfg, append([]byte{port}, config...))
}

// PortStatus reads the raw driver status of a port.
func (c *Control) PortStatus(ctx context.Context, kind PortKind, port byte) ([]byte, error) {
	_, _, _, _, status := kind.commands()
	return c.call(ctx, status, []byte{port})
}

// SetMotorControl sends a control request to a motor port.
func (c *Control) SetMotorControl(ctx context.Context, port byte, control []byte) error {
	return c.callNoReply(ctx, cmdMotorPortControl, append([]byte{port}, control...))
}

// ============================================================================
// Drivetrain
// ============================================================================

// ConfigureDrivetrain assigns a drivetrain role to each motor port.
func (c *Control) ConfigureDrivetrain(ctx context.Context, drivetrainType byte, motors []byte) error {
	return c.callNoReply(ctx, cmdConfigureDrivetrain, append([]byte{drivetrainType}, motors...))
}

// DrivetrainSpeed requests wheel speeds in degrees per second.
func (c *Control) DrivetrainSpeed(ctx context.Context, left, right float32, powerLimit int8) error {
	p := []byte{drivetrainSpeed}
	p = appendFloat32(p, left)
	p = appendFloat32(p, right)
	p = append(p, byte(powerLimit))
	return c.callNoReply(ctx, cmdDrivetrainRequest, p)
}

// DrivetrainPosition requests relative wheel travel in degrees.
func (c *Control) DrivetrainPosition(ctx context.Context, left, right int32, leftSpeed, rightSpeed float32, powerLimit int8) error {
	p := []byte{drivetrainPosition}
	p = binary.LittleEndian.AppendUint32(p, uint32(left))  //nolint:gosec // Two's complement on the wire
	p = binary.LittleEndian.AppendUint32(p, uint32(right)) //nolint:gosec // Two's complement on the wire
	p = appendFloat32(p, leftSpeed)
	p = appendFloat32(p, rightSpeed)
	p = append(p, byte(powerLimit))
	return c.callNoReply(ctx, cmdDrivetrainRequest, p)
}

// DrivetrainTurn requests an in-place turn by angle degrees.
func (c *Control) DrivetrainTurn(ctx context.Context, angle int32, wheelSpeed float32, powerLimit int8) error {
	p := []byte{drivetrainTurn}
	p = binary.LittleEndian.AppendUint32(p, uint32(angle)) //nolint:gosec // Two's complement on the wire
	p = appendFloat32(p, wheelSpeed)
	p = append(p, byte(powerLimit))
	return c.callNoReply(ctx, cmdDrivetrainRequest, p)
}

// ============================================================================
// Ring LED
// ============================================================================

// RingLedScenarioTypes reads the built-in LED scenarios by name.
func (c *Control) RingLedScenarioTypes(ctx context.Context) (map[string]byte, error) {
	out, err := c.call(ctx, cmdRingLedScenarioTypes, nil)
	if err != nil {
		return nil, err
	}
	return ParseStringList(out)
}

// SetRingLedScenario selects a built-in LED scenario.
func (c *Control) SetRingLedScenario(ctx context.Context, scenario byte) error {
	return c.callNoReply(ctx, cmdRingLedSetScenario, []byte{scenario})
}

// RingLedAmount reads the number of LEDs on the ring.
func (c *Control) RingLedAmount(ctx context.Context) (int, error) {
	n, err := c.callByte(ctx, cmdRingLedAmount)
	return int(n), err
}

// SetRingLedUserFrame displays one 24 bit colour per LED.
func (c *Control) SetRingLedUserFrame(ctx context.Context, colors []uint32) error {
	p := make([]byte, 0, 2*len(colors))
	for _, rgb := range colors {
		p = binary.LittleEndian.AppendUint16(p, RGBToRGB565(rgb))
	}
	return c.callNoReply(ctx, cmdRingLedUserFrame, p)
}

// RGBToRGB565 packs a 24 bit colour into 16 bits.
func RGBToRGB565(rgb uint32) uint16 {
	r := (rgb & 0x00F80000) >> 8
	g := (rgb & 0x0000FC00) >> 5
	b := (rgb & 0x000000F8) >> 3
	return uint16(r | g | b) //nolint:gosec // Masked to 16 bits above
}

// ============================================================================
// Status updater
// ============================================================================

// StatusUpdaterReset disables every status slot.
func (c *Control) StatusUpdaterReset(ctx context.Context) error {
	return c.callNoReply(ctx, cmdStatusUpdaterReset, nil)
}

// StatusUpdaterControl enables or disables one status slot.
func (c *Control) StatusUpdaterControl(ctx context.Context, slot byte, enabled bool) error {
	return c.callNoReply(ctx, cmdStatusUpdaterControl, []byte{slot, boolByte(enabled)})
}

// StatusUpdaterRead reads the TLV stream of all enabled slots.
func (c *Control) StatusUpdaterRead(ctx context.Context) ([]byte, error) {
	return c.call(ctx, cmdStatusUpdaterRead, nil)
}

// ============================================================================
// Error memory
// ============================================================================

// ErrorMemoryCount reads the number of stored MCU error records.
func (c *Control) ErrorMemoryCount(ctx context.Context) (uint32, error) {
	out, err := c.call(ctx, cmdErrorMemoryCount, nil)
	if err != nil {
		return 0, err
	}
	if len(out) != 4 {
		return 0, fmt.Errorf("%w: error count: expected 4 bytes, got %d", ErrCommandFailed, len(out))
	}
	return binary.LittleEndian.Uint32(out), nil
}

// ErrorMemoryRead reads error records starting at index start.
func (c *Control) ErrorMemoryRead(ctx context.Context, start uint32) ([][]byte, error) {
	out, err := c.call(ctx, cmdErrorMemoryRead, binary.LittleEndian.AppendUint32(nil, start))
	if err != nil {
		return nil, err
	}
	var records [][]byte
	for len(out) > 0 {
		n := min(errorRecordSize, len(out))
		records = append(records, out[:n])
		out = out[n:]
	}
	return records, nil
}

// ErrorMemoryClear erases the error records.
func (c *Control) ErrorMemoryClear(ctx context.Context) error {
	return c.callNoReply(ctx, cmdErrorMemoryClear, nil)
}

// ErrorMemoryTest makes the MCU record a test error.
func (c *Control) ErrorMemoryTest(ctx context.Context) error {
	return c.callNoReply(ctx, cmdErrorMemoryTest, nil)
}

// ============================================================================
// Encoding helpers
// ============================================================================

// ParseStringList decodes a sequence of [id][name length][name] entries.
func ParseStringList(data []byte) (map[string]byte, error) {
	out := make(map[string]byte)
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated string list", ErrCommandFailed)
		}
		key, size := data[i], int(data[i+1])
		i += 2
		if i+size > len(data) {
			return nil, fmt.Errorf("%w: truncated string list", ErrCommandFailed)
		}
		out[string(data[i:i+size])] = key
		i += size
	}
	return out, nil
}

func appendFloat32(b []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
