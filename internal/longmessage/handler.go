package longmessage

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/rover-core/internal/event"
)

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

type handlerState int

const (
	stateRead handlerState = iota
	stateUploading
	stateInvalid
)

// Update is delivered when a message of Type becomes active, either
// after a verified upload or when FINALIZE re-activates a stored one.
// The subscriber reads the payload from Store and must handle
// storage.ErrNotFound itself.
type Update struct {
	Store *Store
	Type  Type
}

// Handler is the long-message state machine.
//
// Subscribers to the exported events run with the handler lock held and
// must not call back into the Handler.
type Handler struct {
	// MessageUpdated fires when a message becomes active.
	MessageUpdated event.Event[Update]

	// UploadStarted fires when a transfer begins.
	UploadStarted event.Event[Type]

	// UploadFinished fires when a transfer ends, whether or not it verified.
	UploadFinished event.Event[Type]

	store  *Store
	logger Logger

	mu         sync.Mutex
	selected   Type
	state      handlerState
	aggregator *Aggregator
}

// NewHandler returns a Handler with no type selected.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger for the handler.
func (h *Handler) SetLogger(logger Logger) {
	h.logger = logger
}

// ReadStatus returns the status of the selected slot. It never fails:
// storage problems read as UNUSED.
func (h *Handler) ReadStatus(ctx context.Context) StatusInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.selected == 0 {
		return StatusInfo{Status: StatusUnused}
	}

	switch h.state {
	case stateUploading:
		return StatusInfo{
			Status:    StatusUpload,
			HasDigest: true,
			MD5:       h.aggregator.Expected(),
			Length:    h.aggregator.Len(),
		}
	case stateInvalid:
		return StatusInfo{Status: StatusValidationError}
	default:
		info, err := h.store.ReadStatus(ctx, h.selected)
		if err != nil {
			return StatusInfo{Status: StatusUnused}
		}
		return info
	}
}

// SelectType chooses the message slot for subsequent operations.
// Selecting during a transfer abandons it.
func (h *Handler) SelectType(t Type) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateUploading {
		h.UploadFinished.Emit(h.selected)
	}

	if !t.Valid() {
		return protocolError(fmt.Errorf("%w: %d", ErrInvalidType, t))
	}

	h.logger.Debug("long message type selected", "type", t.String())
	h.selected = t
	h.state = stateRead
	h.aggregator = nil
	return nil
}

// InitTransfer starts a new transfer of the selected type.
// A transfer already in progress is abandoned.
func (h *Handler) InitTransfer(digest [DigestSize]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateUploading {
		h.UploadFinished.Emit(h.selected)
	}

	if h.selected == 0 {
		return protocolError(ErrNoTypeSelected)
	}

	h.state = stateUploading
	h.aggregator = NewAggregator(digest)
	h.logger.Info("long message upload started", "type", h.selected.String(), "md5", h.aggregator.ExpectedHex())
	h.UploadStarted.Emit(h.selected)
	return nil
}

// Upload appends a chunk to the transfer in progress.
func (h *Handler) Upload(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != stateUploading {
		return protocolError(ErrNotUploading)
	}
	h.aggregator.Append(chunk)
	return nil
}

// Finalize completes or re-activates the selected message.
//
//   - READ: MessageUpdated fires against storage without checking that a
//     message exists.
//   - UPLOADING: the digest is checked. On a match the message is stored,
//     MessageUpdated fires and the state returns to READ. On a mismatch the
//     state becomes VALIDATION_ERROR.
//   - VALIDATION_ERROR: nothing happens.
func (h *Handler) Finalize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateRead:
		if h.selected == 0 {
			return protocolError(ErrNoTypeSelected)
		}
		h.logger.Info("activating stored long message", "type", h.selected.String())
		h.MessageUpdated.Emit(Update{Store: h.store, Type: h.selected})

	case stateUploading:
		h.UploadFinished.Emit(h.selected)
		agg := h.aggregator
		if !agg.Finalize() {
			h.logger.Warn("long message digest mismatch",
				"type", h.selected.String(),
				"length", agg.Len(),
			)
			h.state = stateInvalid
			h.aggregator = nil
			return nil
		}

		if err := h.store.Set(ctx, h.selected, agg.Data(), agg.ExpectedHex()); err != nil {
			return fmt.Errorf("storing %s: %w", h.selected, err)
		}
		h.logger.Info("long message stored", "type", h.selected.String(), "length", agg.Len())
		h.MessageUpdated.Emit(Update{Store: h.store, Type: h.selected})
		h.state = stateRead
		h.aggregator = nil

	case stateInvalid:
	}
	return nil
}
