package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a process.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// outputBufferSize is the buffer size for capturing subprocess stdout/stderr.
const outputBufferSize = 4096

// DefaultGracefulTimeout is how long Stop waits after SIGTERM.
const DefaultGracefulTimeout = 2 * time.Second

// ErrPoolFull is returned by Pool.Start when the pool is at capacity.
var ErrPoolFull = errors.New("process: too many processes running")

// Config describes one command.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH if not absolute.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	WorkDir string

	// GracefulTimeout is how long to wait for graceful shutdown before SIGKILL.
	GracefulTimeout time.Duration

	// OnStop is called once the process has exited, with its exit error.
	OnStop func(err error)
}

// Logger defines the logging interface for this package.
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

// Process is one running command.
type Process struct {
	config Config
	logger Logger
	cmd    *exec.Cmd
	done   chan struct{}

	mu      sync.RWMutex
	status  Status
	waitErr error
}

// Start launches the command described by cfg.
func Start(ctx context.Context, cfg Config, logger Logger) (*Process, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args...) //nolint:gosec // Binaries come from validated configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Name, err)
	}

	p := &Process{
		config: cfg,
		logger: logger,
		cmd:    cmd,
		done:   make(chan struct{}),
		status: StatusRunning,
	}

	var output sync.WaitGroup
	output.Add(2)
	go p.captureOutput("stdout", stdout, &output)
	go p.captureOutput("stderr", stderr, &output)

	logger.Debug("process started", "name", cfg.Name, "pid", cmd.Process.Pid)

	go func() {
		output.Wait()
		err := cmd.Wait()

		p.mu.Lock()
		p.waitErr = err
		if err != nil {
			p.status = StatusFailed
		} else {
			p.status = StatusExited
		}
		p.mu.Unlock()
		close(p.done)

		logger.Debug("process exited", "name", cfg.Name, "error", err)
		if cfg.OnStop != nil {
			cfg.OnStop(err)
		}
	}()

	return p, nil
}

// Run starts the command and waits for it to exit.
func Run(ctx context.Context, cfg Config, logger Logger) error {
	p, err := Start(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return p.Wait()
}

// captureOutput reads from the given reader and logs each chunk.
func (p *Process) captureOutput(stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.logger.Debug("process output",
				"name", p.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			return
		}
	}
}

// Wait blocks until the process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.waitErr
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stop sends SIGTERM to the process group, then SIGKILL after the
// graceful timeout.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("failed to send SIGTERM to process group", "name", p.config.Name, "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(p.config.GracefulTimeout):
		p.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", p.config.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", p.config.Name, err)
	}
	<-p.done
	return nil
}

// Status returns the current status.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}
