package longmessage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Type identifies the category of a long message.
type Type uint8

// Message types.
const (
	TypeFirmware      Type = 1
	TypeFramework     Type = 2
	TypeConfiguration Type = 3
	TypeTestKit       Type = 4

	typeMax Type = 5
)

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	return t > 0 && t < typeMax
}

// Durable reports whether messages of this type survive a restart.
func (t Type) Durable() bool {
	return t == TypeFirmware || t == TypeFramework
}

// Key is the storage key used for this type.
func (t Type) Key() string {
	return strconv.Itoa(int(t))
}

func (t Type) String() string {
	switch t {
	case TypeFirmware:
		return "firmware"
	case TypeFramework:
		return "framework"
	case TypeConfiguration:
		return "configuration"
	case TypeTestKit:
		return "test_kit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Status is the externally visible state of the selected message slot.
type Status uint8

// Status values as sent on the wire.
const (
	StatusUnused          Status = 0
	StatusUpload          Status = 1
	StatusValidation      Status = 2
	StatusReady           Status = 3
	StatusValidationError Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusUnused:
		return "unused"
	case StatusUpload:
		return "upload"
	case StatusValidation:
		return "validation"
	case StatusReady:
		return "ready"
	case StatusValidationError:
		return "validation_error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// DigestSize is the length of an MD5 digest in bytes.
const DigestSize = 16

// StatusInfo is the answer to a status query. MD5 and Length are
// meaningful only when HasDigest is true.
type StatusInfo struct {
	Status    Status
	HasDigest bool
	MD5       [DigestSize]byte
	Length    int
}

// HexMD5 returns the digest as lowercase hex, or "" when there is none.
func (s StatusInfo) HexMD5() string {
	if !s.HasDigest {
		return ""
	}
	return hex.EncodeToString(s.MD5[:])
}

// Domain errors for the longmessage package.
var (
	// ErrProtocol wraps every request the state machine rejects.
	ErrProtocol = errors.New("longmessage: protocol error")

	// ErrInvalidType is returned for a type id outside 1..4.
	ErrInvalidType = errors.New("longmessage: invalid message type")

	// ErrNoTypeSelected is returned by INIT_TRANSFER or FINALIZE before SELECT_TYPE.
	ErrNoTypeSelected = errors.New("longmessage: no message type selected")

	// ErrNotUploading is returned by UPLOAD_CHUNK outside a transfer.
	ErrNotUploading = errors.New("longmessage: no transfer in progress")
)

func protocolError(err error) error {
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}

func decodeDigest(hexDigest string) ([DigestSize]byte, bool) {
	var out [DigestSize]byte
	raw, err := hex.DecodeString(hexDigest)
	if err != nil || len(raw) != DigestSize {
		return out, false
	}
	copy(out[:], raw)
	return out, true
}
