package mcu

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig configures a SerialPort.
type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// SerialPort is a Port on a serial device.
//
// A read that times out returns the bytes received so far. The transport
// treats a short frame as corrupt and retries.
type SerialPort struct {
	mu   sync.Mutex
	port serial.Port
}

// OpenSerial opens the serial device described by cfg (8N1).
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close() //nolint:errcheck // Best effort on the error path
			return nil, fmt.Errorf("setting read timeout: %w", err)
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close() //nolint:errcheck // Best effort on the error path
		return nil, fmt.Errorf("flushing input: %w", err)
	}

	return &SerialPort{port: port}, nil
}

// Read implements Port.
func (p *SerialPort) Read(length int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, length)
	got := 0
	for got < length {
		n, err := p.port.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break // timeout
		}
		got += n
	}
	return buf[:got], nil
}

// Write implements Port.
func (p *SerialPort) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(data) > 0 {
		n, err := p.port.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Close releases the device.
func (p *SerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Close()
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
