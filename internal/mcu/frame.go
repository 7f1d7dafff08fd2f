package mcu

import (
	"encoding/binary"
	"fmt"
)

// Op is the operation field of a command header.
type Op byte

// Command operations.
const (
	OpStart     Op = 0
	OpRestart   Op = 1
	OpGetResult Op = 2
	OpCancel    Op = 3
)

// Status is the status field of a response header.
type Status byte

// Response statuses.
const (
	StatusOk                    Status = 0
	StatusBusy                  Status = 1
	StatusPending               Status = 2
	StatusUnknownOperation      Status = 3
	StatusInvalidOperation      Status = 4
	StatusCommandIntegrityError Status = 5
	StatusPayloadIntegrityError Status = 6
	StatusPayloadLengthError    Status = 7
	StatusUnknownCommand        Status = 8
	StatusCommandError          Status = 9
	StatusInternalError         Status = 10
)

var statusNames = [...]string{
	"ok",
	"busy",
	"pending",
	"unknown operation",
	"invalid operation",
	"command integrity error",
	"payload integrity error",
	"payload length error",
	"unknown command",
	"command error",
	"internal error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("unknown status (code %d)", byte(s))
}

// Frame sizes.
const (
	CommandHeaderLength  = 6
	ResponseHeaderLength = 5
	MaxPayloadLength     = 255
)

// EncodeCommand builds the bytes of one command.
func EncodeCommand(op Op, command byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes, %d allowed", ErrPayloadTooLong, len(payload), MaxPayloadLength)
	}
	out := make([]byte, 0, CommandHeaderLength+len(payload))
	out = append(out, byte(op), command, byte(len(payload)))
	out = binary.LittleEndian.AppendUint16(out, CRC16(payload))
	out = append(out, CRC7(out, crc7Seed))
	return append(out, payload...), nil
}

// ResponseHeader is a decoded response header.
type ResponseHeader struct {
	Status        Status
	PayloadLength int
	PayloadCRC    uint16
	HeaderCRC     byte
}

// DecodeResponseHeader parses and checks the first 5 bytes of data.
func DecodeResponseHeader(data []byte) (ResponseHeader, bool) {
	if len(data) < ResponseHeaderLength {
		return ResponseHeader{}, false
	}
	if CRC7(data[:ResponseHeaderLength-1], crc7Seed) != data[4] {
		return ResponseHeader{}, false
	}
	return ResponseHeader{
		Status:        Status(data[0]),
		PayloadLength: int(data[1]),
		PayloadCRC:    binary.LittleEndian.Uint16(data[2:4]),
		HeaderCRC:     data[4],
	}, true
}

// EncodeResponse builds a response frame. Used by device simulators and tests.
func EncodeResponse(status Status, payload []byte) []byte {
	out := make([]byte, 0, ResponseHeaderLength+len(payload))
	out = append(out, byte(status), byte(len(payload)))
	out = binary.LittleEndian.AppendUint16(out, CRC16(payload))
	out = append(out, CRC7(out, crc7Seed))
	return append(out, payload...)
}

// validPayload reports whether payload matches the header checksum.
func (h ResponseHeader) validPayload(payload []byte) bool {
	return h.PayloadCRC == CRC16(payload)
}
