package robot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// SensorDriver is the sensor variant of a port.
type SensorDriver interface {
	// Value returns the last converted value and whether there is one.
	Value() (any, bool)

	// Raw returns the last raw payload.
	Raw() []byte
}

// nullSensor is the driver of a port that is not a sensor.
type nullSensor struct{}

func (nullSensor) Value() (any, bool) { return nil, false }
func (nullSensor) Raw() []byte        { return nil }

// converter turns a raw payload into a value. (nil, nil) means the
// payload carries no reading.
type converter func(raw []byte) (any, error)

// Sensor is a sensor driver defined by its payload conversion.
type Sensor struct {
	port    *Port
	convert converter

	mu    sync.Mutex
	raw   []byte
	value any
}

func newSensor(port *Port, convert converter) *Sensor {
	return &Sensor{port: port, convert: convert}
}

// Value returns the last converted value.
func (s *Sensor) Value() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.value != nil
}

// Raw returns the last raw payload.
func (s *Sensor) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.raw)
}

// UpdateStatus processes a status slot payload. An empty payload clears
// the value. A changed payload is converted and announced.
func (s *Sensor) UpdateStatus(data []byte) {
	s.mu.Lock()
	if len(data) == 0 {
		s.value = nil
		s.mu.Unlock()
		return
	}
	if s.raw != nil && bytes.Equal(s.raw, data) {
		s.mu.Unlock()
		return
	}

	value, err := s.convert(data)
	if err != nil {
		s.mu.Unlock()
		s.port.handler.logger.Warn("invalid sensor payload", "port", s.port.id, "error", err)
		return
	}
	s.raw = bytes.Clone(data)
	if value != nil {
		s.value = value
	}
	reading := SensorReading{Raw: bytes.Clone(s.raw), Value: s.value}
	s.mu.Unlock()

	s.port.SensorValueChanged.Emit(reading)
}

func convertBumper(raw []byte) (any, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("bumper: expected 2 bytes, got %d", len(raw))
	}
	return raw[0] == 1, nil
}

// convertUltrasonic returns the distance in centimetres; 0 means no echo.
func convertUltrasonic(raw []byte) (any, error) {
	if len(raw) != 4 {
		return nil, fmt.Errorf("hc-sr04: expected 4 bytes, got %d", len(raw))
	}
	dst := binary.LittleEndian.Uint32(raw)
	if dst == 0 {
		return nil, nil //nolint:nilnil // No echo is not an error
	}
	return int(dst), nil
}
