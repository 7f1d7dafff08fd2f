package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/rover-core/internal/event"
	"github.com/nerrad567/rover-core/internal/mcu"
)

// Port errors.
var (
	// ErrUnknownPortConfig is returned for a configuration name the
	// catalog does not contain.
	ErrUnknownPortConfig = errors.New("robot: unknown port configuration")

	// ErrUnsupportedDriver is returned when the MCU does not offer the
	// driver a configuration needs.
	ErrUnsupportedDriver = errors.New("robot: driver not supported by MCU")

	// ErrNoSuchPort is returned for a port id or alias that does not exist.
	ErrNoSuchPort = errors.New("robot: no such port")
)

// DriverKind tells which variant a port currently runs.
type DriverKind int

// Driver kinds.
const (
	KindUnconfigured DriverKind = iota
	KindMotor
	KindSensor
)

func (k DriverKind) String() string {
	switch k {
	case KindMotor:
		return "motor"
	case KindSensor:
		return "sensor"
	default:
		return "unconfigured"
	}
}

// PortControl is the MCU command subset ports and their drivers use.
// *mcu.Control implements it.
type PortControl interface {
	SetPortType(ctx context.Context, kind mcu.PortKind, port, typeID byte) error
	SetPortConfig(ctx context.Context, kind mcu.PortKind, port byte, config []byte) error
	SetMotorControl(ctx context.Context, port byte, control []byte) error
}

// ConfigChangedFunc is called by Port.Configure with the configuration
// the port switches to. It is called with NotConfigured first, while the
// driver is replaced, so status polling can be paused.
type ConfigChangedFunc func(ctx context.Context, port *Port, configName string) error

// PortHandler owns the ports of one kind.
type PortHandler struct {
	kind     mcu.PortKind
	control  PortControl
	catalog  *DriverCatalog
	types    map[string]byte
	ports    []*Port
	onChange ConfigChangedFunc
	logger   Logger
}

// NewPortHandler creates count ports, numbered from 1.
//
// Parameters:
//   - kind: MCU command group of the ports
//   - control: MCU commands
//   - catalog: configuration names available to these ports
//   - types: driver name to MCU type id, as read from the MCU
//   - count: number of ports
//   - onChange: optional configuration change hook
func NewPortHandler(kind mcu.PortKind, control PortControl, catalog *DriverCatalog, types map[string]byte, count int, onChange ConfigChangedFunc) *PortHandler {
	h := &PortHandler{
		kind:     kind,
		control:  control,
		catalog:  catalog,
		types:    types,
		onChange: onChange,
		logger:   noopLogger{},
	}
	for i := 1; i <= count; i++ {
		h.ports = append(h.ports, &Port{id: i, handler: h, configName: NotConfigured})
	}
	return h
}

// SetLogger sets the logger for the handler and its drivers.
func (h *PortHandler) SetLogger(logger Logger) {
	h.logger = logger
}

// Count returns the number of ports.
func (h *PortHandler) Count() int {
	return len(h.ports)
}

// Port returns the port with 1-based id.
func (h *PortHandler) Port(id int) (*Port, error) {
	if id < 1 || id > len(h.ports) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchPort, id)
	}
	return h.ports[id-1], nil
}

// Ports returns every port in id order.
func (h *PortHandler) Ports() []*Port {
	return h.ports
}

// Reset unconfigures every port.
func (h *PortHandler) Reset(ctx context.Context) error {
	for _, p := range h.ports {
		if err := p.Configure(ctx, NotConfigured); err != nil {
			return err
		}
	}
	return nil
}

// SensorReading is the state of a sensor after an update.
type SensorReading struct {
	Raw   []byte
	Value any
}

// Port is a stable handle to one motor or sensor port. Its driver is
// replaced by Configure.
type Port struct {
	// MotorStatusChanged fires when a motor driver on this port receives
	// a status update.
	MotorStatusChanged event.Event[MotorStatus]

	// SensorValueChanged fires when a sensor driver on this port sees a
	// new raw value.
	SensorValueChanged event.Event[SensorReading]

	id      int
	handler *PortHandler

	mu         sync.RWMutex
	configName string
	kind       DriverKind
	motor      *DcMotor
	sensor     *Sensor
}

// ID returns the 1-based port number.
func (p *Port) ID() int {
	return p.id
}

// ConfigName returns the active configuration name.
func (p *Port) ConfigName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.configName
}

// Kind returns the active driver variant.
func (p *Port) Kind() DriverKind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kind
}

// Motor returns the motor driver, or a driver that ignores every command
// when the port is not a motor.
func (p *Port) Motor() MotorDriver {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.motor == nil {
		return nullMotor{}
	}
	return p.motor
}

// Sensor returns the sensor driver, or a driver without data when the
// port is not a sensor.
func (p *Port) Sensor() SensorDriver {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sensor == nil {
		return nullSensor{}
	}
	return p.sensor
}

// UpdateStatus feeds a status payload to the active driver.
func (p *Port) UpdateStatus(data []byte) {
	p.mu.RLock()
	motor, sensor := p.motor, p.sensor
	p.mu.RUnlock()

	switch {
	case motor != nil:
		motor.UpdateStatus(data)
	case sensor != nil:
		sensor.UpdateStatus(data)
	}
}

// Configure switches the port to the named configuration. Switching from
// NotConfigured to NotConfigured does nothing.
func (p *Port) Configure(ctx context.Context, name string) error {
	spec, ok := p.handler.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPortConfig, name)
	}
	typeID, ok := p.handler.types[spec.Driver]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, spec.Driver)
	}

	p.mu.Lock()
	if p.configName == NotConfigured && name == NotConfigured {
		p.mu.Unlock()
		return nil
	}
	p.configName = name
	p.mu.Unlock()

	p.handler.logger.Info("configuring port",
		"kind", portKindName(p.handler.kind),
		"port", p.id,
		"config", name,
		"driver", spec.Driver,
	)

	if err := p.notify(ctx, NotConfigured); err != nil {
		return err
	}
	if err := p.handler.control.SetPortType(ctx, p.handler.kind, byte(p.id), typeID); err != nil { //nolint:gosec // Port ids are small
		return err
	}
	if err := p.installDriver(ctx, spec); err != nil {
		return err
	}
	return p.notify(ctx, name)
}

func (p *Port) installDriver(ctx context.Context, spec DriverSpec) error {
	var (
		kind   = KindUnconfigured
		motor  *DcMotor
		sensor *Sensor
	)

	switch spec.Driver {
	case DriverNotConfigured:
	case DriverDcMotor:
		if spec.Motor == nil {
			return fmt.Errorf("%w: DcMotor without settings", ErrUnknownPortConfig)
		}
		m, err := newDcMotor(ctx, p, *spec.Motor)
		if err != nil {
			return err
		}
		kind, motor = KindMotor, m
	case DriverHCSR04:
		kind, sensor = KindSensor, newSensor(p, convertUltrasonic)
	case DriverBumperSwitch:
		kind, sensor = KindSensor, newSensor(p, convertBumper)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, spec.Driver)
	}

	p.mu.Lock()
	p.kind, p.motor, p.sensor = kind, motor, sensor
	p.mu.Unlock()
	return nil
}

func (p *Port) notify(ctx context.Context, name string) error {
	if p.handler.onChange == nil {
		return nil
	}
	return p.handler.onChange(ctx, p, name)
}

func portKindName(k mcu.PortKind) string {
	if k == mcu.SensorPorts {
		return "sensor"
	}
	return "motor"
}
