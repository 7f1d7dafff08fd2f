package mcu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Domain errors for the mcu package.
var (
	// ErrTransport marks a failure of the underlying link. The robot
	// cannot recover from it and exits.
	ErrTransport = errors.New("mcu: transport failure")

	// ErrBusyTimeout is returned when the MCU stays busy too long.
	ErrBusyTimeout = errors.New("mcu: busy timeout")

	// ErrRetryLimit is returned when no valid frame arrived after retrying.
	ErrRetryLimit = errors.New("mcu: retry limit reached")

	// ErrUnexpectedHeader is returned when a payload read returns a
	// different header than the one already received.
	ErrUnexpectedHeader = errors.New("mcu: unexpected header")

	// ErrPayloadTooLong is returned for commands over 255 payload bytes.
	ErrPayloadTooLong = errors.New("mcu: payload too long")

	// ErrUnknownCommand is returned when the MCU does not implement a command.
	ErrUnknownCommand = errors.New("mcu: unknown command")

	// ErrCommandFailed is returned for any other non-ok status.
	ErrCommandFailed = errors.New("mcu: command failed")
)

// Port is the raw byte link to the MCU.
//
// Read asks the device for its current response and returns exactly
// length bytes of it. The device keeps its response buffered, so a
// repeated read returns the same frame again.
type Port interface {
	Read(length int) ([]byte, error)
	Write(data []byte) error
}

// Response is the result of one command.
type Response struct {
	Status  Status
	Payload []byte
}

// DefaultBusyTimeout is how long the MCU may answer busy.
const DefaultBusyTimeout = 5 * time.Second

const frameRetries = 5

// Transport serialises commands over a Port.
type Transport struct {
	port        Port
	busyTimeout time.Duration
	mu          sync.Mutex
}

// NewTransport returns a Transport on port. A non-positive busyTimeout
// selects DefaultBusyTimeout.
func NewTransport(port Port, busyTimeout time.Duration) *Transport {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return &Transport{port: port, busyTimeout: busyTimeout}
}

// Send executes command and returns its response. A non-ok status is not
// an error at this level.
//
// Parameters:
//   - ctx: Cancels waiting on a busy MCU
//   - command: Command id
//   - payload: Up to 255 bytes
//
// Returns:
//   - Response: Final status and payload
//   - error: Wraps ErrTransport, ErrBusyTimeout, ErrRetryLimit or ErrUnexpectedHeader
func (t *Transport) Send(ctx context.Context, command byte, payload []byte) (Response, error) {
	start, err := EncodeCommand(OpStart, command, payload)
	if err != nil {
		return Response{}, err
	}
	getResult, _ := EncodeCommand(OpGetResult, command, nil)

	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		header, err := t.exchange(ctx, start)
		if err != nil {
			return Response{}, err
		}

		for header.Status == StatusPending {
			if header, err = t.exchange(ctx, getResult); err != nil {
				return Response{}, err
			}
		}

		// Integrity errors are assumed to be random line noise.
		if header.Status == StatusCommandIntegrityError {
			continue
		}

		body, err := t.readPayload(header)
		if err != nil {
			return Response{}, err
		}
		return Response{Status: header.Status, Payload: body}, nil
	}
}

// exchange writes a command and reads headers until the MCU is not busy.
func (t *Transport) exchange(ctx context.Context, frame []byte) (ResponseHeader, error) {
	if err := t.port.Write(frame); err != nil {
		return ResponseHeader{}, fmt.Errorf("%w: write: %w", ErrTransport, err)
	}

	deadline := time.Now().Add(t.busyTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return ResponseHeader{}, err
		}
		header, err := t.readHeader()
		if err != nil {
			return ResponseHeader{}, err
		}
		if header.Status != StatusBusy {
			return header, nil
		}
	}
	return ResponseHeader{}, ErrBusyTimeout
}

func (t *Transport) readHeader() (ResponseHeader, error) {
	for range frameRetries {
		data, err := t.port.Read(ResponseHeaderLength)
		if err != nil {
			return ResponseHeader{}, fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
		if header, ok := DecodeResponseHeader(data); ok {
			return header, nil
		}
	}
	return ResponseHeader{}, fmt.Errorf("%w: response header", ErrRetryLimit)
}

// readPayload re-reads the whole frame and checks it carries header.
func (t *Transport) readPayload(header ResponseHeader) ([]byte, error) {
	if header.PayloadLength == 0 {
		return nil, nil
	}

	for range frameRetries {
		data, err := t.port.Read(ResponseHeaderLength + header.PayloadLength)
		if err != nil {
			return nil, fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
		again, ok := DecodeResponseHeader(data)
		if !ok {
			continue
		}
		if again != header {
			return nil, ErrUnexpectedHeader
		}
		body := data[ResponseHeaderLength:]
		if len(body) == header.PayloadLength && header.validPayload(body) {
			return append([]byte(nil), body...), nil
		}
	}
	return nil, fmt.Errorf("%w: response payload", ErrRetryLimit)
}

// IsLinkFailure reports whether err means the MCU link itself is broken,
// as opposed to the MCU rejecting a command.
func IsLinkFailure(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrBusyTimeout) ||
		errors.Is(err, ErrRetryLimit) ||
		errors.Is(err, ErrUnexpectedHeader)
}
