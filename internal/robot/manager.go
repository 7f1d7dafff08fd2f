package robot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/rover-core/internal/event"
	"github.com/nerrad567/rover-core/internal/longmessage"
	"github.com/nerrad567/rover-core/internal/mcu"
	"github.com/nerrad567/rover-core/internal/remote"
	"github.com/nerrad567/rover-core/internal/resource"
	"github.com/nerrad567/rover-core/internal/scripting"
	"github.com/nerrad567/rover-core/internal/storage"
)

// ExitCode is the process exit status requested by the Manager.
type ExitCode int

// Exit codes understood by the launcher.
const (
	ExitOK             ExitCode = 0
	ExitError          ExitCode = 1
	ExitIntegrityError ExitCode = 2
	ExitUpdateRequest  ExitCode = 3
)

// Manager defaults.
const (
	DefaultUpdateInterval = 20 * time.Millisecond
	DefaultPingRetry      = 100 * time.Millisecond

	// updateGrace is the delay between an update request and the exit.
	updateGrace = time.Second
)

// Tunes played by the Manager.
const (
	tuneStartup   = "robot2"
	tuneConnected = "bell"
)

// TestKitScript is the script name of an uploaded test kit.
const TestKitScript = "test_kit"

// Options configures a Manager.
type Options struct {
	Hardware        Hardware
	Sound           *Sound
	SoftwareVersion string

	// DefaultConfig is applied when no configuration is given. Nil means
	// every port unconfigured and no scripts.
	DefaultConfig *Config

	UpdateInterval    time.Duration
	PingRetry         time.Duration
	FirstFrameTimeout time.Duration
	HeartbeatTimeout  time.Duration

	Logger Logger
}

// MotorUpdate is a motor status report of one port.
type MotorUpdate struct {
	Port   int         `json:"port"`
	Status MotorStatus `json:"status"`
}

// SensorUpdate is a new sensor reading of one port.
type SensorUpdate struct {
	Port  int    `json:"port"`
	Raw   []byte `json:"raw"`
	Value any    `json:"value"`
}

// ScriptInfo describes a registered script.
type ScriptInfo struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Priority int    `json:"priority"`
	Runs     int    `json:"runs"`
}

// ScriptRun reports the end of one script run.
type ScriptRun struct {
	Name   string `json:"name"`
	Runs   int    `json:"runs"`
	Failed bool   `json:"failed"`
}

// Snapshot is the observable state of the robot.
type Snapshot struct {
	RobotStatus      string            `json:"robot_status"`
	ControllerStatus string            `json:"controller_status"`
	Battery          mcu.BatteryStatus `json:"battery"`
	Version          Version           `json:"version"`
	Uptime           float64           `json:"uptime_seconds"`
	Scripts          []ScriptInfo      `json:"scripts"`
}

// Manager runs the robot: it owns the resources, scripts, remote
// controller and the periodic loop, and applies configurations.
type Manager struct {
	// Events forwarded from the robot. Each has one subscriber.
	RobotStatusChanged      event.Event[RobotStatus]
	ControllerStatusChanged event.Event[ControllerStatus]
	BatteryChanged          event.Event[mcu.BatteryStatus]
	MotorChanged            event.Event[MotorUpdate]
	SensorChanged           event.Event[SensorUpdate]
	ScriptFinished          event.Event[ScriptRun]

	opts          Options
	logger        Logger
	defaultConfig *Config

	robot     *Robot
	resources map[string]*resource.Resource
	scripts   *scripting.Manager
	remote    *remote.Controller
	scheduler *remote.Scheduler

	mu            sync.Mutex
	config        *Config
	pendingConfig *Config
	configQueued  bool
	background    []func(ctx context.Context) error
	statusBefore  RobotStatus
	stopped       bool

	cancel   context.CancelFunc
	loopDone chan struct{}

	exitOnce sync.Once
	exitCode ExitCode
	done     chan struct{}
}

// NewManager returns a Manager that has not touched the hardware yet.
func NewManager(opts Options) *Manager {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.PingRetry <= 0 {
		opts.PingRetry = DefaultPingRetry
	}
	if opts.Sound == nil {
		opts.Sound = NewSound(SoundConfig{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	defaultConfig := opts.DefaultConfig
	if defaultConfig == nil {
		defaultConfig = NewConfig()
	}

	m := &Manager{
		opts:          opts,
		logger:        logger,
		defaultConfig: defaultConfig,
		config:        defaultConfig,
		done:          make(chan struct{}),
	}
	m.remote = remote.NewController()
	m.remote.SetLogger(logger)
	m.scheduler = remote.NewScheduler(m.remote, opts.FirstFrameTimeout, opts.HeartbeatTimeout)
	m.scheduler.SetLogger(logger)
	m.scheduler.Detected.Subscribe(m.onControllerDetected)
	m.scheduler.Lost.Subscribe(m.onControllerLost)

	m.scripts = scripting.NewManager(m.newRobotInterface)
	m.scripts.SetLogger(logger)
	return m
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start waits for the MCU to answer, builds the robot, starts the
// periodic loop and queues the default configuration.
//
// Parameters:
//   - ctx: Bounds the startup and, once started, the loop
//
// Returns:
//   - error: If ctx ends before the MCU answers or the MCU cannot be queried
func (m *Manager) Start(ctx context.Context) error {
	hw := m.opts.Hardware
	for {
		err := hw.Ping(ctx)
		if err == nil {
			break
		}
		m.logger.Debug("waiting for mcu", "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.PingRetry):
		}
	}

	r, err := NewRobot(ctx, hw, m.opts.Sound, m.opts.SoftwareVersion, m.logger)
	if err != nil {
		return err
	}
	m.robot = r
	m.resources = newResources(r)
	m.forwardEvents(r)

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	go m.loop(loopCtx)

	if err := r.Status().SetRobotStatus(ctx, StatusNotConfigured); err != nil {
		m.logger.Warn("setting initial status failed", "error", err)
	}
	m.Configure(nil, func() {
		if err := r.Sound().PlayTune(tuneStartup); err != nil {
			m.logger.Warn("startup tune failed", "error", err)
		}
	})

	m.logger.Info("robot started",
		"motors", r.Motors().Count(),
		"sensors", r.Sensors().Count(),
		"leds", r.RingLed().Count(),
	)
	return nil
}

func newResources(r *Robot) map[string]*resource.Resource {
	res := map[string]*resource.Resource{
		ResourceLedRing:    resource.New(),
		ResourceDrivetrain: resource.New(),
		ResourceSound:      resource.New(),
	}
	for _, p := range r.Motors().Ports() {
		res[MotorResource(p.ID())] = resource.New()
	}
	for _, p := range r.Sensors().Ports() {
		res[SensorResource(p.ID())] = resource.New()
	}
	return res
}

func (m *Manager) forwardEvents(r *Robot) {
	r.Status().RobotStatusChanged.Subscribe(m.RobotStatusChanged.Emit)
	r.Status().ControllerStatusChanged.Subscribe(m.ControllerStatusChanged.Emit)
	r.BatteryChanged.Subscribe(m.BatteryChanged.Emit)

	for _, p := range r.Motors().Ports() {
		id := p.ID()
		p.MotorStatusChanged.Subscribe(func(st MotorStatus) {
			m.MotorChanged.Emit(MotorUpdate{Port: id, Status: st})
		})
	}
	for _, p := range r.Sensors().Ports() {
		id := p.ID()
		p.SensorValueChanged.Subscribe(func(v SensorReading) {
			m.SensorChanged.Emit(SensorUpdate{Port: id, Raw: v.Raw, Value: v.Value})
		})
	}
}

// Stop marks the robot stopped, ends every script and the loop. It is
// safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.logger.Info("stopping robot")
	m.scheduler.Stop()

	if m.robot != nil {
		ctx := context.Background()
		status := m.robot.Status()
		if err := status.SetControllerStatus(ctx, ControllerNotConnected); err != nil {
			m.logger.Warn("clearing controller status failed", "error", err)
		}
		if err := status.SetRobotStatus(ctx, StatusStopped); err != nil {
			m.logger.Warn("setting stopped status failed", "error", err)
		}
	}

	if m.cancel != nil {
		m.cancel()
		<-m.loopDone
	}
	m.scripts.Reset()
	m.opts.Sound.StopAll()
	m.exit(ExitOK)
}

// Done is closed once the Manager requests the process to exit.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ExitCode returns the requested exit code. It is valid after Done.
func (m *Manager) ExitCode() ExitCode {
	<-m.done
	return m.exitCode
}

func (m *Manager) exit(code ExitCode) {
	m.exitOnce.Do(func() {
		m.logger.Info("exit requested", "code", int(code))
		m.exitCode = code
		close(m.done)
	})
}

// RequestUpdate shows the updating status and exits with
// ExitUpdateRequest shortly after.
func (m *Manager) RequestUpdate() {
	m.RunInBackground(func(ctx context.Context) error {
		if err := m.robot.Status().SetRobotStatus(ctx, StatusUpdating); err != nil {
			return err
		}
		time.AfterFunc(updateGrace, func() { m.exit(ExitUpdateRequest) })
		return nil
	})
}

// Robot returns the robot, nil before Start.
func (m *Manager) Robot() *Robot { return m.robot }

// Scripts returns the script runtime.
func (m *Manager) Scripts() *scripting.Manager { return m.scripts }

// Config returns the configuration last applied.
func (m *Manager) Config() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{Scripts: []ScriptInfo{}}
	for _, name := range m.scripts.Names() {
		s, ok := m.scripts.Script(name)
		if !ok {
			continue
		}
		snap.Scripts = append(snap.Scripts, ScriptInfo{
			Name:     name,
			State:    s.State().String(),
			Priority: s.Priority(),
			Runs:     s.RunCount(),
		})
	}
	if m.robot == nil {
		snap.RobotStatus = StatusStartingUp.String()
		snap.ControllerStatus = ControllerNotConnected.String()
		return snap
	}
	snap.RobotStatus = m.robot.Status().RobotStatus().String()
	snap.ControllerStatus = m.robot.Status().ControllerStatus().String()
	snap.Battery = m.robot.Battery()
	snap.Version = m.robot.Version()
	snap.Uptime = time.Since(m.robot.StartTime()).Seconds()
	return snap
}

// ============================================================================
// Periodic loop
// ============================================================================

// RunInBackground queues fn for the periodic loop. Functions run in
// order, one per loop goroutine, between status reads.
func (m *Manager) RunInBackground(fn func(ctx context.Context) error) {
	m.mu.Lock()
	m.background = append(m.background, fn)
	m.mu.Unlock()
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := m.update(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("mcu link failed", "error", err)
			m.exit(ExitError)
			return
		}
	}
}

// update reads the MCU status and runs queued background functions.
// Only link failures are returned.
func (m *Manager) update(ctx context.Context) error {
	if err := m.robot.UpdateStatus(ctx); err != nil {
		if mcu.IsLinkFailure(err) {
			return err
		}
		m.logger.Warn("status update failed", "error", err)
	}

	m.mu.Lock()
	fns := m.background
	m.background = nil
	m.mu.Unlock()

	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			if mcu.IsLinkFailure(err) {
				return err
			}
			m.logger.Error("background task failed", "error", err)
		}
	}
	return nil
}

// ============================================================================
// Configuration
// ============================================================================

// Configure queues cfg for the loop, nil selecting the default
// configuration, and then after if not nil. A configuration still queued
// is replaced rather than applied twice. Nothing happens once stopped.
func (m *Manager) Configure(cfg *Config, after func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.pendingConfig = cfg
	if !m.configQueued {
		m.configQueued = true
		m.background = append(m.background, m.configurePending)
	}
	if after != nil {
		m.background = append(m.background, func(context.Context) error {
			after()
			return nil
		})
	}
}

func (m *Manager) configurePending(ctx context.Context) error {
	m.mu.Lock()
	cfg := m.pendingConfig
	m.pendingConfig = nil
	m.configQueued = false
	stopped := m.stopped
	m.mu.Unlock()

	if stopped {
		return nil
	}
	return m.configure(ctx, cfg)
}

func (m *Manager) configure(ctx context.Context, cfg *Config) error {
	isDefault := cfg == nil
	if isDefault {
		cfg = m.defaultConfig
	}
	m.logger.Info("applying configuration", "default", isDefault, "scripts", len(cfg.Scripts))

	if err := m.resetConfiguration(ctx); err != nil {
		return fmt.Errorf("resetting configuration: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	if err := m.applyConfiguration(ctx, cfg); err != nil {
		return fmt.Errorf("applying configuration: %w", err)
	}

	status := StatusConfigured
	if isDefault {
		status = StatusNotConfigured
	}
	return m.robot.Status().SetRobotStatus(ctx, status)
}

func (m *Manager) resetConfiguration(ctx context.Context) error {
	if err := m.robot.Status().SetRobotStatus(ctx, StatusConfiguring); err != nil {
		return err
	}

	m.scripts.Reset()
	m.scripts.Assign("Motor", MotorConstants())
	m.scripts.Assign("RingLed", RingLedScenarios())

	m.scheduler.Stop()
	m.remote.Reset()

	for _, r := range m.resources {
		r.Reset()
	}

	if err := m.robot.Ping(ctx); err != nil {
		return err
	}
	return m.robot.Reset(ctx)
}

func (m *Manager) applyConfiguration(ctx context.Context, cfg *Config) error {
	r := m.robot

	for _, p := range r.Motors().Ports() {
		if err := p.Configure(ctx, cfg.Motors.Get(p.ID())); err != nil {
			return err
		}
	}
	for _, p := range r.Sensors().Ports() {
		if err := p.Configure(ctx, cfg.Sensors.Get(p.ID())); err != nil {
			return err
		}
	}

	dt := r.Drivetrain()
	for _, id := range cfg.DrivetrainLeft {
		p, err := r.Motors().Port(id)
		if err != nil {
			return err
		}
		dt.AddLeft(p)
	}
	for _, id := range cfg.DrivetrainRight {
		p, err := r.Motors().Port(id)
		if err != nil {
			return err
		}
		dt.AddRight(p)
	}
	if err := dt.Configure(ctx); err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Scripts))
	for name := range cfg.Scripts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		spec := cfg.Scripts[name]
		s := m.scripts.Register(name, spec.Body, spec.Priority)
		s.OnStopped.Subscribe(func() { m.scriptFinished(s) })
	}

	for _, b := range cfg.Analog {
		script := b.Script
		m.remote.OnAnalogValues(b.Channels, func(values []byte) {
			m.startScript(script, map[string]any{"input": values})
		})
	}
	for idx, script := range cfg.Buttons {
		if script == "" {
			continue
		}
		m.remote.OnButtonPressed(idx, func() { m.startScript(script, nil) })
	}
	for _, script := range cfg.Background {
		m.startScript(script, nil)
	}
	return nil
}

func (m *Manager) scriptFinished(s *scripting.Script) {
	m.ScriptFinished.Emit(ScriptRun{
		Name:   s.Name(),
		Runs:   s.RunCount(),
		Failed: s.LastError() != nil,
	})
}

func (m *Manager) startScript(name string, inputs map[string]any) {
	if _, err := m.scripts.Start(name, inputs); err != nil {
		m.logger.Warn("starting script failed", "script", name, "error", err)
	}
}

func (m *Manager) newRobotInterface(s *scripting.Script) any {
	return NewRobotInterface(m.robot, m.Config(), m.resources, s.Priority())
}

// ============================================================================
// Link and remote controller
// ============================================================================

// OnConnectionChanged handles the link to the controlling device coming
// up or going away. Losing it returns to the default configuration.
func (m *Manager) OnConnectionChanged(connected bool) {
	if m.robot == nil {
		return
	}
	status := m.robot.Status()
	ctx := context.Background()

	if !connected {
		m.logger.Info("link disconnected")
		m.report(status.SetControllerStatus(ctx, ControllerNotConnected))
		m.Configure(nil, nil)
		return
	}

	m.logger.Info("link connected")
	m.report(status.SetControllerStatus(ctx, ControllerConnectedNoControl))
	m.report(m.robot.Sound().PlayTune(tuneConnected))
}

// SubmitFrame passes a remote-control frame to the scheduler, starting a
// supervision session if none is running.
func (m *Manager) SubmitFrame(frame remote.Frame) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped || m.robot == nil {
		return
	}

	if !m.scheduler.Running() {
		m.scheduler.Start()
	}
	m.scheduler.Submit(frame)
}

func (m *Manager) onControllerDetected() {
	m.logger.Info("remote controller detected")
	m.report(m.robot.Status().SetControllerStatus(context.Background(), ControllerControlled))
}

func (m *Manager) onControllerLost() {
	m.logger.Info("remote controller lost")
	status := m.robot.Status()
	if status.ControllerStatus() == ControllerNotConnected {
		return
	}
	m.report(status.SetControllerStatus(context.Background(), ControllerConnectedNoControl))
	m.Configure(nil, nil)
}

// report logs err and turns a link failure into an exit request.
func (m *Manager) report(err error) {
	if err == nil {
		return
	}
	if mcu.IsLinkFailure(err) {
		m.logger.Error("mcu link failed", "error", err)
		m.exit(ExitError)
		return
	}
	m.logger.Warn("robot command failed", "error", err)
}

// ============================================================================
// Long messages
// ============================================================================

// BindLongMessages subscribes the Manager to the upload events of h.
func (m *Manager) BindLongMessages(h *longmessage.Handler) {
	h.MessageUpdated.Subscribe(m.HandleLongMessage)
	h.UploadStarted.Subscribe(m.onUploadStarted)
	h.UploadFinished.Subscribe(m.onUploadFinished)
}

// HandleLongMessage acts on a message that became active. The work runs
// on the loop since the caller holds the handler lock.
func (m *Manager) HandleLongMessage(u longmessage.Update) {
	m.RunInBackground(func(ctx context.Context) error {
		return m.applyLongMessage(ctx, u)
	})
}

func (m *Manager) applyLongMessage(ctx context.Context, u longmessage.Update) error {
	m.logger.Info("long message updated", "type", u.Type.String())

	switch u.Type {
	case longmessage.TypeFirmware, longmessage.TypeFramework:
		m.RequestUpdate()
		return nil

	case longmessage.TypeConfiguration:
		data, ok := m.readMessage(ctx, u)
		if !ok {
			return nil
		}
		cfg, err := ParseConfig(data)
		if err != nil {
			m.logger.Warn("invalid configuration, using default", "error", err)
			cfg = nil
		}
		m.Configure(cfg, nil)
		return nil

	case longmessage.TypeTestKit:
		data, ok := m.readMessage(ctx, u)
		if !ok {
			return nil
		}
		cfg := NewConfig()
		cfg.Scripts[TestKitScript] = ScriptSpec{Body: scripting.LuaBody{Source: string(data)}}
		m.Configure(cfg, m.startTestKit)
		return nil

	default:
		return nil
	}
}

func (m *Manager) startTestKit() {
	s, ok := m.scripts.Script(TestKitScript)
	if !ok {
		return
	}
	s.OnStopped.Subscribe(func() {
		m.scriptFinished(s)
		m.Configure(nil, nil)
	})
	m.startScript(TestKitScript, nil)
}

func (m *Manager) readMessage(ctx context.Context, u longmessage.Update) ([]byte, bool) {
	data, err := u.Store.Get(ctx, u.Type)
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, storage.ErrIntegrity):
		m.logger.Error("stored long message corrupted", "type", u.Type.String(), "error", err)
		m.exit(ExitIntegrityError)
	default:
		m.logger.Warn("long message not available", "type", u.Type.String(), "error", err)
	}
	return nil, false
}

func (m *Manager) onUploadStarted(t longmessage.Type) {
	if !t.Durable() {
		return
	}
	m.RunInBackground(func(ctx context.Context) error {
		status := m.robot.Status()
		m.mu.Lock()
		m.statusBefore = status.RobotStatus()
		m.mu.Unlock()
		return status.SetRobotStatus(ctx, StatusUpdating)
	})
}

func (m *Manager) onUploadFinished(t longmessage.Type) {
	if !t.Durable() {
		return
	}
	m.RunInBackground(func(ctx context.Context) error {
		status := m.robot.Status()
		if status.RobotStatus() != StatusUpdating {
			return nil
		}
		m.mu.Lock()
		prev := m.statusBefore
		m.mu.Unlock()
		return status.SetRobotStatus(ctx, prev)
	})
}
