// Package api provides the HTTP diagnostics API and WebSocket server for Rover Core.
//
// It exposes the robot snapshot, the long-message upload protocol and a
// live event stream to tooling on the local network.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
	"github.com/nerrad567/rover-core/internal/infrastructure/logging"
	"github.com/nerrad567/rover-core/internal/longmessage"
	"github.com/nerrad567/rover-core/internal/remote"
	"github.com/nerrad567/rover-core/internal/robot"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Robot is the view of the running robot the API needs.
// *robot.Manager implements it.
type Robot interface {
	Snapshot() robot.Snapshot
	SubmitFrame(frame remote.Frame)
}

// LongMessages drives the upload protocol. *longmessage.Protocol implements it.
type LongMessages interface {
	HandleWrite(ctx context.Context, header longmessage.Header, payload []byte) longmessage.Result
	Status(ctx context.Context) longmessage.StatusInfo
}

// LinkStatus reports whether the message broker is reachable.
// *mqtt.Client implements it.
type LinkStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Robot        Robot
	LongMessages LongMessages
	Link         LinkStatus // optional
	ExternalHub  *Hub       // If set, the server uses this hub instead of creating its own
	Version      string
}

// Server is the HTTP diagnostics server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	robot        Robot
	longMessages LongMessages
	link         LinkStatus
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, robot, long messages)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Robot == nil {
		return nil, fmt.Errorf("robot is required")
	}
	if deps.LongMessages == nil {
		return nil, fmt.Errorf("long message protocol is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		robot:        deps.Robot,
		longMessages: deps.LongMessages,
		link:         deps.Link,
		version:      deps.Version,
		startTime:    time.Now(),
		hub:          deps.ExternalHub,
	}
	if s.hub != nil {
		s.hub.SetFrameSink(s.robot.SubmitFrame)
	}
	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub unless one was injected,
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Context for the hub lifetime
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.hub.SetFrameSink(s.robot.SubmitFrame)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
