package longmessage

import (
	"context"
	"encoding/binary"
	"errors"
)

// Header selects the write operation.
type Header uint8

// Write operations.
const (
	HeaderSelectType   Header = 0
	HeaderInitTransfer Header = 1
	HeaderUploadChunk  Header = 2
	HeaderFinalize     Header = 3
)

// Result is the one-byte answer to a write request.
type Result uint8

// Write results.
const (
	ResultSuccess       Result = 0
	ResultInvalidLength Result = 1
	ResultUnlikelyError Result = 2
)

// Protocol decodes wire requests and drives a Handler.
type Protocol struct {
	handler *Handler
	logger  Logger
}

// NewProtocol returns a Protocol for handler.
func NewProtocol(handler *Handler) *Protocol {
	return &Protocol{handler: handler, logger: handler.logger}
}

// SetLogger sets the logger for the protocol codec.
func (p *Protocol) SetLogger(logger Logger) {
	p.logger = logger
}

// HandleWrite executes one write request and returns its result code.
// Rejected requests never close the link; they are reported in the result.
func (p *Protocol) HandleWrite(ctx context.Context, header Header, payload []byte) Result {
	var err error
	switch header {
	case HeaderSelectType:
		if len(payload) != 1 {
			return ResultInvalidLength
		}
		err = p.handler.SelectType(Type(payload[0]))

	case HeaderInitTransfer:
		if len(payload) != DigestSize {
			return ResultInvalidLength
		}
		var digest [DigestSize]byte
		copy(digest[:], payload)
		err = p.handler.InitTransfer(digest)

	case HeaderUploadChunk:
		if len(payload) == 0 {
			return ResultInvalidLength
		}
		err = p.handler.Upload(payload)

	case HeaderFinalize:
		if len(payload) != 0 {
			return ResultInvalidLength
		}
		err = p.handler.Finalize(ctx)

	default:
		p.logger.Warn("unknown long message header", "header", uint8(header))
		return ResultUnlikelyError
	}

	if err != nil {
		if errors.Is(err, ErrProtocol) {
			p.logger.Warn("long message request rejected", "header", uint8(header), "error", err)
		} else {
			p.logger.Error("long message request failed", "header", uint8(header), "error", err)
		}
		return ResultUnlikelyError
	}
	return ResultSuccess
}

// HandleRead encodes the current status:
// status byte [+ 16 byte MD5 + 4 byte big-endian length].
func (p *Protocol) HandleRead(ctx context.Context) []byte {
	return EncodeStatus(p.handler.ReadStatus(ctx))
}

// Status returns the current status without encoding it.
func (p *Protocol) Status(ctx context.Context) StatusInfo {
	return p.handler.ReadStatus(ctx)
}

// EncodeStatus encodes info in the read response format.
func EncodeStatus(info StatusInfo) []byte {
	if !info.HasDigest {
		return []byte{byte(info.Status)}
	}
	out := make([]byte, 0, 1+DigestSize+4)
	out = append(out, byte(info.Status))
	out = append(out, info.MD5[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(info.Length)) //nolint:gosec // Length bounded by upload size
	return out
}

// DecodeWrite splits a raw write request into header and payload.
func DecodeWrite(raw []byte) (Header, []byte, bool) {
	if len(raw) == 0 {
		return 0, nil, false
	}
	return Header(raw[0]), raw[1:], true
}
