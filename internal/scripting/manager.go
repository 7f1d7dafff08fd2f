package scripting

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrScriptNotFound is returned for an unknown script name.
var ErrScriptNotFound = errors.New("scripting: script not found")

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

// RobotFactory builds the "robot" value for a newly registered script.
// The value typically takes resources with the script's priority.
type RobotFactory func(s *Script) any

// Manager owns the set of registered scripts and the shared globals.
type Manager struct {
	mu      sync.Mutex
	globals map[string]any
	scripts map[string]*Script
	robot   RobotFactory
	logger  Logger
}

// NewManager returns an empty Manager. robot may be nil.
func NewManager(robot RobotFactory) *Manager {
	return &Manager{
		globals: make(map[string]any),
		scripts: make(map[string]*Script),
		robot:   robot,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager and scripts registered later.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// Register installs body under name. A script already registered under
// that name is stopped and torn down first.
func (m *Manager) Register(name string, body Body, priority int) *Script {
	m.mu.Lock()
	old := m.scripts[name]
	delete(m.scripts, name)
	logger := m.logger
	m.mu.Unlock()

	if old != nil {
		logger.Info("replacing script", "script", name)
		old.close()
	}

	s := &Script{
		name:     name,
		priority: priority,
		body:     body,
		manager:  m,
		logger:   logger,
		values:   make(map[string]any),
		inputs:   make(map[string]any),
	}
	if m.robot != nil {
		s.values["robot"] = m.robot(s)
	}

	m.mu.Lock()
	m.scripts[name] = s
	m.mu.Unlock()

	logger.Debug("script registered", "script", name, "priority", priority)
	return s
}

// Script returns the named script.
func (m *Manager) Script(name string) (*Script, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scripts[name]
	return s, ok
}

// Names returns the registered script names in sorted order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.scripts))
}

// Start launches the named script with inputs. It reports false if the
// script is already running.
func (m *Manager) Start(name string, inputs map[string]any) (bool, error) {
	s, ok := m.Script(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	return s.Start(inputs), nil
}

// Stop requests the named script to stop.
func (m *Manager) Stop(name string) error {
	s, ok := m.Script(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	s.Stop()
	return nil
}

// StopAll requests every script to stop. It does not wait.
func (m *Manager) StopAll() {
	for _, s := range m.snapshot() {
		s.Stop()
	}
}

// Assign sets a global visible to present and future scripts from their
// next run on.
func (m *Manager) Assign(name string, value any) {
	m.mu.Lock()
	m.globals[name] = value
	m.mu.Unlock()
}

// Reset stops and joins every script, then forgets scripts and globals.
func (m *Manager) Reset() {
	m.mu.Lock()
	scripts := slices.Collect(maps.Values(m.scripts))
	m.scripts = make(map[string]*Script)
	m.globals = make(map[string]any)
	logger := m.logger
	m.mu.Unlock()

	logger.Debug("stopping scripts", "count", len(scripts))
	for _, s := range scripts {
		s.close()
	}
}

func (m *Manager) snapshot() []*Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(maps.Values(m.scripts))
}

func (m *Manager) globalsSnapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.globals)
}
