package robot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rover-core/internal/mcu"
)

// fakeMCU answers commands from a reply table and records every call.
type fakeMCU struct {
	mu       sync.Mutex
	replies  map[byte][]byte
	calls    []mcuCall
	pingErrs int
	linkErr  error
}

type mcuCall struct {
	cmd     byte
	payload []byte
}

func stringList(entries ...any) []byte {
	var out []byte
	for i := 0; i < len(entries); i += 2 {
		name := entries[i].(string)
		id := entries[i+1].(int)
		out = append(out, byte(id), byte(len(name)))
		out = append(out, name...)
	}
	return out
}

func newFakeMCU() *fakeMCU {
	return &fakeMCU{replies: map[byte][]byte{
		0x01: []byte("2.0.0"),
		0x02: []byte("0.1.1"),
		0x10: {6},
		0x11: stringList("NotConfigured", 0, "DcMotor", 1),
		0x20: {4},
		0x21: stringList("NotConfigured", 0, "HC_SR04", 1, "BumperSwitch", 2),
		0x32: {12},
	}}
}

func (f *fakeMCU) Send(_ context.Context, cmd byte, payload []byte) (mcu.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, mcuCall{cmd: cmd, payload: bytes.Clone(payload)})
	if f.linkErr != nil {
		return mcu.Response{}, f.linkErr
	}
	if cmd == 0x00 && f.pingErrs > 0 {
		f.pingErrs--
		return mcu.Response{}, fmt.Errorf("%w: no answer", mcu.ErrTransport)
	}
	return mcu.Response{Status: mcu.StatusOk, Payload: bytes.Clone(f.replies[cmd])}, nil
}

func (f *fakeMCU) setReply(cmd byte, payload []byte) {
	f.mu.Lock()
	f.replies[cmd] = payload
	f.mu.Unlock()
}

func (f *fakeMCU) setLinkError(err error) {
	f.mu.Lock()
	f.linkErr = err
	f.mu.Unlock()
}

func (f *fakeMCU) clearCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// payloads returns the payload of every call to cmd.
func (f *fakeMCU) payloads(cmd byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, c := range f.calls {
		if c.cmd == cmd {
			out = append(out, c.payload)
		}
	}
	return out
}

func (f *fakeMCU) sent(cmd byte, payload []byte) bool {
	for _, p := range f.payloads(cmd) {
		if bytes.Equal(p, payload) {
			return true
		}
	}
	return false
}

func newTestRobot(t *testing.T) (*Robot, *fakeMCU) {
	t.Helper()
	fake := newFakeMCU()
	r, err := NewRobot(context.Background(), mcu.NewControl(fake), nil, "1.0.0", nil)
	if err != nil {
		t.Fatalf("NewRobot() error = %v", err)
	}
	fake.clearCalls()
	return r, fake
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func f32(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

func i32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// ============================================================================
// Robot
// ============================================================================

func TestNewRobot_ReadsCapabilities(t *testing.T) {
	r, _ := newTestRobot(t)

	if got := r.Motors().Count(); got != 6 {
		t.Errorf("motor ports = %d, want 6", got)
	}
	if got := r.Sensors().Count(); got != 4 {
		t.Errorf("sensor ports = %d, want 4", got)
	}
	if got := r.RingLed().Count(); got != 12 {
		t.Errorf("ring leds = %d, want 12", got)
	}

	v := r.Version()
	if v.Hardware != (mcu.Version{Major: 2}) {
		t.Errorf("hardware version = %+v", v.Hardware)
	}
	if v.Firmware != (mcu.Version{Minor: 1, Revision: 1}) {
		t.Errorf("firmware version = %+v", v.Firmware)
	}
	if v.Software != "1.0.0" {
		t.Errorf("software version = %q", v.Software)
	}
	if r.Status().RobotStatus() != StatusStartingUp {
		t.Errorf("initial status = %v", r.Status().RobotStatus())
	}
}

func TestNewRobot_MCUFailure(t *testing.T) {
	fake := newFakeMCU()
	fake.setLinkError(mcu.ErrTransport)

	_, err := NewRobot(context.Background(), mcu.NewControl(fake), nil, "1.0.0", nil)
	if !errors.Is(err, mcu.ErrTransport) {
		t.Fatalf("NewRobot() error = %v, want ErrTransport", err)
	}
}

func TestRobot_Reset(t *testing.T) {
	r, fake := newTestRobot(t)

	if err := r.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if !fake.sent(0x31, []byte{byte(RingLedBreathingGreen)}) {
		t.Error("ring led not set to breathing green")
	}
	if len(fake.payloads(0x3A)) != 1 {
		t.Error("status updater not reset")
	}
	if !fake.sent(0x3B, []byte{mcu.SlotBattery, 1}) {
		t.Error("battery slot not enabled")
	}
	if !fake.sent(0x1A, []byte{mcu.DrivetrainDifferential, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("drivetrain reset payloads = %v", fake.payloads(0x1A))
	}
	if r.Status().RobotStatus() != StatusNotConfigured {
		t.Errorf("status after reset = %v", r.Status().RobotStatus())
	}
}

func TestRobot_BatteryChangedOnlyOnChange(t *testing.T) {
	r, fake := newTestRobot(t)
	ctx := context.Background()
	if err := r.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	var events []mcu.BatteryStatus
	r.BatteryChanged.Subscribe(func(b mcu.BatteryStatus) { events = append(events, b) })

	fake.setReply(0x3C, []byte{mcu.SlotBattery, 4, 1, 80, 0, 90})
	for range 3 {
		if err := r.UpdateStatus(ctx); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
	}

	want := mcu.BatteryStatus{ChargerStatus: 1, Main: 80, Motor: 90}
	if len(events) != 1 || events[0] != want {
		t.Errorf("battery events = %+v, want one %+v", events, want)
	}
	if r.Battery() != want {
		t.Errorf("Battery() = %+v, want %+v", r.Battery(), want)
	}
}

// ============================================================================
// StatusIndicator
// ============================================================================

type fakeLeds struct {
	master    []byte
	bluetooth []bool
}

func (l *fakeLeds) SetMasterStatus(_ context.Context, v byte) error {
	l.master = append(l.master, v)
	return nil
}

func (l *fakeLeds) SetBluetoothStatus(_ context.Context, v bool) error {
	l.bluetooth = append(l.bluetooth, v)
	return nil
}

func TestStatusIndicator_WritesOnlyOnChange(t *testing.T) {
	leds := &fakeLeds{}
	s := NewStatusIndicator(leds)
	ctx := context.Background()

	steps := []struct {
		robot      *RobotStatus
		controller *ControllerStatus
	}{
		{robot: ptr(StatusNotConfigured)},
		{robot: ptr(StatusConfigured)},
		{controller: ptr(ControllerConnectedNoControl)},
		{controller: ptr(ControllerControlled)},
		{controller: ptr(ControllerControlled)},
		{robot: ptr(StatusConfiguring)},
	}
	for _, step := range steps {
		if step.robot != nil {
			if err := s.SetRobotStatus(ctx, *step.robot); err != nil {
				t.Fatal(err)
			}
		}
		if step.controller != nil {
			if err := s.SetControllerStatus(ctx, *step.controller); err != nil {
				t.Fatal(err)
			}
		}
	}

	if want := []byte{2, 3, 4}; !bytes.Equal(leds.master, want) {
		t.Errorf("master writes = %v, want %v", leds.master, want)
	}
	if len(leds.bluetooth) != 1 || !leds.bluetooth[0] {
		t.Errorf("bluetooth writes = %v, want [true]", leds.bluetooth)
	}
}

func TestStatusIndicator_StoppedIsTerminal(t *testing.T) {
	leds := &fakeLeds{}
	s := NewStatusIndicator(leds)
	ctx := context.Background()

	var changes []RobotStatus
	s.RobotStatusChanged.Subscribe(func(st RobotStatus) { changes = append(changes, st) })

	_ = s.SetRobotStatus(ctx, StatusStopped)
	_ = s.SetRobotStatus(ctx, StatusConfigured)

	if s.RobotStatus() != StatusStopped {
		t.Errorf("status = %v, want Stopped", s.RobotStatus())
	}
	if len(leds.master) != 0 {
		t.Errorf("master writes = %v, want none", leds.master)
	}
	if len(changes) != 1 || changes[0] != StatusStopped {
		t.Errorf("changes = %v, want [Stopped]", changes)
	}
}

func TestStatusIndicator_UpdateResends(t *testing.T) {
	leds := &fakeLeds{}
	s := NewStatusIndicator(leds)

	if err := s.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(leds.master, []byte{masterLedNotConfigured}) {
		t.Errorf("master writes = %v", leds.master)
	}
	if len(leds.bluetooth) != 1 || leds.bluetooth[0] {
		t.Errorf("bluetooth writes = %v, want [false]", leds.bluetooth)
	}
}

func ptr[T any](v T) *T { return &v }

// ============================================================================
// Ports
// ============================================================================

func TestPort_ConfigureMotor(t *testing.T) {
	r, fake := newTestRobot(t)
	ctx := context.Background()
	p, err := r.Motors().Port(1)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Configure(ctx, "RevvyMotor"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if p.Kind() != KindMotor || p.ConfigName() != "RevvyMotor" {
		t.Errorf("port = %v/%s, want motor/RevvyMotor", p.Kind(), p.ConfigName())
	}
	if !fake.sent(0x12, []byte{1, 1}) {
		t.Errorf("set port type payloads = %v", fake.payloads(0x12))
	}
	cfg := fake.payloads(0x13)
	if len(cfg) != 1 || len(cfg[0]) != 1+50 || cfg[0][0] != 1 {
		t.Errorf("port config payloads = %v", cfg)
	}
	if !fake.sent(0x3B, []byte{mcu.MotorSlot(1), 1}) {
		t.Error("motor status slot not enabled")
	}

	fake.clearCalls()
	if err := p.Configure(ctx, NotConfigured); err != nil {
		t.Fatal(err)
	}
	if p.Kind() != KindUnconfigured {
		t.Errorf("kind = %v, want unconfigured", p.Kind())
	}
	if !fake.sent(0x3B, []byte{mcu.MotorSlot(1), 0}) {
		t.Error("motor status slot not disabled")
	}
	if !fake.sent(0x12, []byte{1, 0}) {
		t.Errorf("set port type payloads = %v", fake.payloads(0x12))
	}
}

func TestPort_ConfigureNotConfiguredTwiceIsNoop(t *testing.T) {
	r, fake := newTestRobot(t)
	p, _ := r.Sensors().Port(2)

	if err := p.Configure(context.Background(), NotConfigured); err != nil {
		t.Fatal(err)
	}
	if n := len(fake.payloads(0x22)); n != 0 {
		t.Errorf("set port type sent %d times, want 0", n)
	}
}

func TestPort_ConfigureErrors(t *testing.T) {
	r, _ := newTestRobot(t)
	ctx := context.Background()
	motor, _ := r.Motors().Port(1)
	sensor, _ := r.Sensors().Port(1)

	if err := motor.Configure(ctx, "HC_SR04"); !errors.Is(err, ErrUnknownPortConfig) {
		t.Errorf("motor HC_SR04 error = %v, want ErrUnknownPortConfig", err)
	}
	if err := sensor.Configure(ctx, "RevvyMotor"); !errors.Is(err, ErrUnknownPortConfig) {
		t.Errorf("sensor RevvyMotor error = %v, want ErrUnknownPortConfig", err)
	}
	if _, err := r.Motors().Port(7); !errors.Is(err, ErrNoSuchPort) {
		t.Errorf("Port(7) error = %v, want ErrNoSuchPort", err)
	}
	if _, err := r.Motors().Port(0); !errors.Is(err, ErrNoSuchPort) {
		t.Errorf("Port(0) error = %v, want ErrNoSuchPort", err)
	}
}

func TestPort_UnsupportedDriver(t *testing.T) {
	fake := newFakeMCU()
	fake.setReply(0x11, stringList("NotConfigured", 0))
	r, err := NewRobot(context.Background(), mcu.NewControl(fake), nil, "1.0.0", nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := r.Motors().Port(1)

	if err := p.Configure(context.Background(), "RevvyMotor"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("Configure() error = %v, want ErrUnsupportedDriver", err)
	}
}

func TestPort_UnconfiguredDriversAreInert(t *testing.T) {
	r, fake := newTestRobot(t)
	p, _ := r.Motors().Port(3)

	if err := p.Motor().SetSpeed(context.Background(), 100, NoLimit); err != nil {
		t.Fatal(err)
	}
	if p.Motor().IsMoving() {
		t.Error("unconfigured motor reports moving")
	}
	if _, ok := p.Sensor().Value(); ok {
		t.Error("unconfigured sensor has a value")
	}
	if n := len(fake.payloads(0x14)); n != 0 {
		t.Errorf("motor control sent %d times, want 0", n)
	}
}

// ============================================================================
// Motors
// ============================================================================

func configuredMotor(t *testing.T) (*Port, *fakeMCU) {
	t.Helper()
	r, fake := newTestRobot(t)
	p, _ := r.Motors().Port(1)
	if err := p.Configure(context.Background(), "RevvyMotor"); err != nil {
		t.Fatal(err)
	}
	fake.clearCalls()
	return p, fake
}

func TestMotorConfig_Encode(t *testing.T) {
	spec, ok := MotorCatalog().Lookup("RevvyMotor_CCW")
	if !ok {
		t.Fatal("RevvyMotor_CCW missing")
	}
	b := spec.Motor.Encode()

	if len(b) != 50 {
		t.Fatalf("len = %d, want 50", len(b))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[8:])); got != 10 {
		t.Errorf("position P = %v, want 10", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[28:])); got != float32(1/37.5) {
		t.Errorf("speed P = %v", got)
	}
	if got := int16(binary.LittleEndian.Uint16(b[48:])); got != -1536 {
		t.Errorf("resolution = %d, want -1536", got)
	}
}

func TestDcMotor_ControlRequests(t *testing.T) {
	p, fake := configuredMotor(t)
	m := p.Motor()
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want []byte
	}{
		{
			name: "speed",
			call: func() error { return m.SetSpeed(ctx, 100, NoLimit) },
			want: concat([]byte{1, controlSpeed}, f32(100)),
		},
		{
			name: "speed with power limit",
			call: func() error { return m.SetSpeed(ctx, -50, PowerLimit(40)) },
			want: concat([]byte{1, controlSpeed}, f32(-50), f32(40)),
		},
		{
			name: "relative position with speed limit",
			call: func() error { return m.SetPosition(ctx, 90, PositionRelative, SpeedLimit(60)) },
			want: concat([]byte{1, 3}, i32(90), []byte{1}, f32(60)),
		},
		{
			name: "absolute position with power limit",
			call: func() error { return m.SetPosition(ctx, -180, PositionAbsolute, PowerLimit(30)) },
			want: concat([]byte{1, 2}, i32(-180), []byte{0}, f32(30)),
		},
		{
			name: "position without limit",
			call: func() error { return m.SetPosition(ctx, 5, PositionAbsolute, NoLimit) },
			want: concat([]byte{1, 2}, i32(5)),
		},
		{
			name: "power",
			call: func() error { return m.SetPower(ctx, -50) },
			want: []byte{1, controlPower, 0xCE},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake.clearCalls()
			if err := tt.call(); err != nil {
				t.Fatal(err)
			}
			got := fake.payloads(0x14)
			if len(got) != 1 || !bytes.Equal(got[0], tt.want) {
				t.Errorf("payloads = %v, want [%v]", got, tt.want)
			}
		})
	}
}

func motorStatus(pos int32, speed float32, power int8, reached ...byte) []byte {
	b := concat(i32(pos), f32(speed), []byte{byte(power)})
	return append(b, reached...)
}

func TestDcMotor_StatusAndMoving(t *testing.T) {
	p, _ := configuredMotor(t)
	m := p.Motor()

	var events []MotorStatus
	p.MotorStatusChanged.Subscribe(func(s MotorStatus) { events = append(events, s) })

	p.UpdateStatus(motorStatus(360, 0.001, 10))
	if m.IsMoving() {
		t.Error("IsMoving() = true for a stopped motor")
	}
	if got := m.Status(); got.Position != 360 || got.Power != 10 {
		t.Errorf("Status() = %+v", got)
	}

	p.UpdateStatus(motorStatus(400, 120, 50))
	if !m.IsMoving() {
		t.Error("IsMoving() = false for a turning motor")
	}

	if err := m.SetPosition(context.Background(), 90, PositionRelative, NoLimit); err != nil {
		t.Fatal(err)
	}
	p.UpdateStatus(motorStatus(400, 0, 0, 0))
	if !m.IsMoving() {
		t.Error("IsMoving() = false before the target is reported reached")
	}
	p.UpdateStatus(motorStatus(490, 0, 0, 0))
	if !m.IsMoving() {
		t.Error("IsMoving() = false with target not reached")
	}
	p.UpdateStatus(motorStatus(490, 0, 0, 1))
	if m.IsMoving() {
		t.Error("IsMoving() = true with target reached")
	}

	// A 9 byte slot carries no reached flag and falls back to speed and power.
	p.UpdateStatus(motorStatus(490, 0, 0))
	if m.IsMoving() {
		t.Error("IsMoving() = true for a stopped motor without a reached flag")
	}

	p.UpdateStatus([]byte{1, 2, 3})
	if len(events) != 6 {
		t.Errorf("status events = %d, want 6", len(events))
	}
}

// ============================================================================
// Sensors
// ============================================================================

func configuredSensor(t *testing.T, name string) *Port {
	t.Helper()
	r, _ := newTestRobot(t)
	p, _ := r.Sensors().Port(1)
	if err := p.Configure(context.Background(), name); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSensor_Ultrasonic(t *testing.T) {
	p := configuredSensor(t, "HC_SR04")

	var events []SensorReading
	p.SensorValueChanged.Subscribe(func(r SensorReading) { events = append(events, r) })

	if _, ok := p.Sensor().Value(); ok {
		t.Error("value before any data")
	}

	p.UpdateStatus([]byte{25, 0, 0, 0})
	p.UpdateStatus([]byte{25, 0, 0, 0})
	if v, ok := p.Sensor().Value(); !ok || v != 25 {
		t.Errorf("Value() = %v, %v; want 25", v, ok)
	}

	// No echo keeps the last distance.
	p.UpdateStatus([]byte{0, 0, 0, 0})
	if v, _ := p.Sensor().Value(); v != 25 {
		t.Errorf("Value() after no echo = %v, want 25", v)
	}

	p.UpdateStatus([]byte{1, 2})
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}

	p.UpdateStatus(nil)
	if _, ok := p.Sensor().Value(); ok {
		t.Error("value survives an empty payload")
	}
}

func TestSensor_Bumper(t *testing.T) {
	p := configuredSensor(t, "BumperSwitch")

	p.UpdateStatus([]byte{1, 0})
	if v, _ := p.Sensor().Value(); v != true {
		t.Errorf("pressed = %v, want true", v)
	}
	p.UpdateStatus([]byte{0, 0})
	if v, _ := p.Sensor().Value(); v != false {
		t.Errorf("released = %v, want false", v)
	}
	if got := p.Sensor().Raw(); !bytes.Equal(got, []byte{0, 0}) {
		t.Errorf("Raw() = %v", got)
	}
}

// ============================================================================
// Drivetrain and LED ring
// ============================================================================

func TestDrivetrain_Assignment(t *testing.T) {
	r, fake := newTestRobot(t)
	dt := r.Drivetrain()
	m1, _ := r.Motors().Port(1)
	m4, _ := r.Motors().Port(4)
	m5, _ := r.Motors().Port(5)

	dt.AddLeft(m1)
	dt.AddRight(m4)
	dt.AddRight(m5)
	if err := dt.Configure(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []byte{mcu.DrivetrainDifferential, roleLeft, 0, 0, roleRight, roleRight, 0}
	if !fake.sent(0x1A, want) {
		t.Errorf("drivetrain payloads = %v, want %v", fake.payloads(0x1A), want)
	}

	if err := dt.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := dt.Assignment(); !bytes.Equal(got, make([]byte, 6)) {
		t.Errorf("assignment after reset = %v", got)
	}
}

func TestDrivetrain_IsMoving(t *testing.T) {
	r, _ := newTestRobot(t)
	ctx := context.Background()
	p, _ := r.Motors().Port(2)
	if err := p.Configure(ctx, "RevvyMotor"); err != nil {
		t.Fatal(err)
	}
	r.Drivetrain().AddLeft(p)

	p.UpdateStatus(motorStatus(0, 0, 0))
	if r.Drivetrain().IsMoving() {
		t.Error("IsMoving() = true with motors stopped")
	}
	p.UpdateStatus(motorStatus(0, 90, 20))
	if !r.Drivetrain().IsMoving() {
		t.Error("IsMoving() = false with a motor turning")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "#ff0000", want: 0xFF0000},
		{in: "#00Ff10", want: 0x00FF10},
		{in: "123456", want: 0x123456},
		{in: "#fff", wantErr: true},
		{in: "#gg0000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidColor) {
				t.Errorf("ParseColor(%q) error = %v, want ErrInvalidColor", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseColor(%q) = %#x, %v; want %#x", tt.in, got, err, tt.want)
		}
	}
}

func TestRingLed_UserFrame(t *testing.T) {
	r, fake := newTestRobot(t)
	colors := make([]uint32, r.RingLed().Count())
	colors[0] = 0xFF0000

	if err := r.RingLed().DisplayUserFrame(context.Background(), colors); err != nil {
		t.Fatal(err)
	}
	if r.RingLed().Scenario() != RingLedUserFrame {
		t.Errorf("scenario = %v, want user frame", r.RingLed().Scenario())
	}
	frames := fake.payloads(0x33)
	if len(frames) != 1 || len(frames[0]) != 24 {
		t.Fatalf("user frame payloads = %v", frames)
	}
	if got := binary.LittleEndian.Uint16(frames[0]); got != 0xF800 {
		t.Errorf("first led = %#04x, want 0xf800", got)
	}
}
