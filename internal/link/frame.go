package link

import (
	"errors"
	"fmt"

	"github.com/nerrad567/rover-core/internal/remote"
)

// buttonBytes is the size of the button bit field ending every frame.
const buttonBytes = remote.ButtonCount / 8

// ErrShortFrame is returned for control payloads without the button field.
var ErrShortFrame = errors.New("link: control frame too short")

// DecodeFrame decodes a control payload into a remote frame.
func DecodeFrame(payload []byte) (remote.Frame, error) {
	if len(payload) < buttonBytes {
		return remote.Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(payload))
	}

	split := len(payload) - buttonBytes
	frame := remote.Frame{Analog: append([]byte(nil), payload[:split]...)}
	bits := payload[split:]
	for i := range frame.Buttons {
		frame.Buttons[i] = bits[i/8]&(1<<(i%8)) != 0
	}
	return frame, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(frame remote.Frame) []byte {
	out := make([]byte, len(frame.Analog)+buttonBytes)
	copy(out, frame.Analog)
	bits := out[len(frame.Analog):]
	for i, pressed := range frame.Buttons {
		if pressed {
			bits[i/8] |= 1 << (i % 8)
		}
	}
	return out
}
