package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rover-core/internal/longmessage"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleStatus)

		r.Route("/longmessage", func(r chi.Router) {
			r.Get("/", s.handleLongMessageStatus)
			r.Post("/{header}", s.handleLongMessageWrite)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns the robot snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.robot.Snapshot())
}

// LongMessageStatus is the JSON form of a long-message status read.
type LongMessageStatus struct {
	Status string `json:"status"`
	MD5    string `json:"md5,omitempty"`
	Length *int   `json:"length,omitempty"`
}

func newLongMessageStatus(info longmessage.StatusInfo) LongMessageStatus {
	out := LongMessageStatus{Status: info.Status.String()}
	if info.HasDigest {
		length := info.Length
		out.MD5 = info.HexMD5()
		out.Length = &length
	}
	return out
}

// handleLongMessageStatus returns the status of the selected slot.
func (s *Server) handleLongMessageStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newLongMessageStatus(s.longMessages.Status(r.Context())))
}

// LongMessageResult is the answer to a long-message write.
type LongMessageResult struct {
	Result uint8 `json:"result"`
}

// handleLongMessageWrite runs one write operation. The body is the raw
// payload and the header is taken from the path.
func (s *Server) handleLongMessageWrite(w http.ResponseWriter, r *http.Request) {
	header, err := strconv.ParseUint(chi.URLParam(r, "header"), 10, 8)
	if err != nil {
		writeBadRequest(w, r, "header must be a number between 0 and 255")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, r, "failed to read request body")
		return
	}

	// Finalize may apply a configuration; it must not be cut short by
	// the client hanging up.
	ctx := context.WithoutCancel(r.Context())
	result := s.longMessages.HandleWrite(ctx, longmessage.Header(header), payload)
	s.logger.Debug("long message write", "header", header, "bytes", len(payload), "result", result)

	s.hub.Broadcast(ChannelLongMessageUpdated, newLongMessageStatus(s.longMessages.Status(ctx)))
	writeJSON(w, http.StatusOK, LongMessageResult{Result: uint8(result)})
}
