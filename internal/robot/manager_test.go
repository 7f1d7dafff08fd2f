package robot

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // Upload digest format
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/rover-core/internal/longmessage"
	"github.com/nerrad567/rover-core/internal/mcu"
	"github.com/nerrad567/rover-core/internal/remote"
	"github.com/nerrad567/rover-core/internal/scripting"
	"github.com/nerrad567/rover-core/internal/storage"
)

func newTestManager(t *testing.T, fake *fakeMCU) *Manager {
	t.Helper()
	m := NewManager(Options{
		Hardware:          mcu.NewControl(fake),
		SoftwareVersion:   "1.0.0",
		UpdateInterval:    2 * time.Millisecond,
		PingRetry:         time.Millisecond,
		FirstFrameTimeout: time.Second,
		HeartbeatTimeout:  time.Second,
	})
	t.Cleanup(m.Stop)
	return m
}

func startManager(t *testing.T) (*Manager, *fakeMCU) {
	t.Helper()
	fake := newFakeMCU()
	m := newTestManager(t, fake)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitConfigured(t, m, nil)
	return m, fake
}

// waitConfigured queues cfg and blocks until it has been applied.
func waitConfigured(t *testing.T, m *Manager, cfg *Config) {
	t.Helper()
	applied := make(chan struct{})
	m.Configure(cfg, func() { close(applied) })
	select {
	case <-applied:
	case <-time.After(3 * time.Second):
		t.Fatal("configuration not applied")
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestManager_StartRetriesPing(t *testing.T) {
	fake := newFakeMCU()
	fake.pingErrs = 3
	m := newTestManager(t, fake)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := len(fake.payloads(0x00)); n < 4 {
		t.Errorf("pings = %d, want at least 4", n)
	}
	if m.Robot() == nil {
		t.Fatal("robot not built")
	}
}

func TestManager_StartCancelled(t *testing.T) {
	fake := newFakeMCU()
	fake.pingErrs = 1 << 30
	m := newTestManager(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() error = %v, want DeadlineExceeded", err)
	}
}

func TestManager_DefaultConfiguration(t *testing.T) {
	m, fake := startManager(t)

	if got := m.Robot().Status().RobotStatus(); got != StatusNotConfigured {
		t.Errorf("status = %v, want NotConfigured", got)
	}
	if len(fake.payloads(0x3A)) == 0 {
		t.Error("status updater never reset")
	}
	if !fake.sent(0x04, []byte{masterLedConfiguring}) {
		t.Errorf("master led payloads = %v", fake.payloads(0x04))
	}
	snap := m.Snapshot()
	if snap.RobotStatus != "NotConfigured" || snap.ControllerStatus != "NotConnected" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Version.Software != "1.0.0" {
		t.Errorf("snapshot version = %+v", snap.Version)
	}
}

func TestManager_StopIsTerminal(t *testing.T) {
	m, _ := startManager(t)

	m.Stop()
	m.Stop()

	select {
	case <-m.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}
	if m.ExitCode() != ExitOK {
		t.Errorf("ExitCode() = %d, want ExitOK", m.ExitCode())
	}
	if got := m.Robot().Status().RobotStatus(); got != StatusStopped {
		t.Errorf("status = %v, want Stopped", got)
	}

	applied := false
	m.Configure(nil, func() { applied = true })
	time.Sleep(20 * time.Millisecond)
	if applied {
		t.Error("configuration applied after Stop")
	}
}

func TestManager_LinkFailureExits(t *testing.T) {
	m, fake := startManager(t)

	fake.setLinkError(mcu.ErrTransport)
	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("manager did not exit on link failure")
	}
	if m.ExitCode() != ExitError {
		t.Errorf("ExitCode() = %d, want ExitError", m.ExitCode())
	}
}

// ============================================================================
// Configuration
// ============================================================================

func TestManager_ApplyConfiguration(t *testing.T) {
	m, fake := startManager(t)

	ran := make(chan *RobotInterface, 1)
	cfg := NewConfig()
	cfg.Motors.Set(1, "RevvyMotor_CCW")
	cfg.Motors.Set(2, "RevvyMotor")
	cfg.Sensors.Set(1, "HC_SR04")
	cfg.Sensors.Names["eye"] = 1
	cfg.DrivetrainLeft = []int{1}
	cfg.DrivetrainRight = []int{2}
	cfg.Scripts["bg"] = ScriptSpec{Priority: 2, Body: scripting.GoBody(func(env *scripting.Env) error {
		ran <- env.Get("robot").(*RobotInterface)
		return nil
	})}
	cfg.Background = []string{"bg"}

	waitConfigured(t, m, cfg)

	if got := m.Robot().Status().RobotStatus(); got != StatusConfigured {
		t.Errorf("status = %v, want Configured", got)
	}
	p, _ := m.Robot().Motors().Port(1)
	if p.ConfigName() != "RevvyMotor_CCW" {
		t.Errorf("motor 1 = %q", p.ConfigName())
	}
	if !fake.sent(0x1A, []byte{mcu.DrivetrainDifferential, roleLeft, roleRight, 0, 0, 0, 0}) {
		t.Errorf("drivetrain payloads = %v", fake.payloads(0x1A))
	}
	if !fake.sent(0x22, []byte{1, 1}) {
		t.Errorf("sensor type payloads = %v", fake.payloads(0x22))
	}
	if !fake.sent(0x3B, []byte{mcu.SensorSlot(1), 1}) {
		t.Error("sensor slot not enabled")
	}

	select {
	case ri := <-ran:
		if s, err := ri.SensorByName("eye"); err != nil || s.ID() != 1 {
			t.Errorf("SensorByName(eye) = %v, %v", s, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background script did not run")
	}

	// Back to default: ports released, status NotConfigured.
	waitConfigured(t, m, nil)
	if p.ConfigName() != NotConfigured {
		t.Errorf("motor 1 after default = %q", p.ConfigName())
	}
	if got := m.Robot().Status().RobotStatus(); got != StatusNotConfigured {
		t.Errorf("status = %v, want NotConfigured", got)
	}
	if _, ok := m.Scripts().Script("bg"); ok {
		t.Error("script survived reconfiguration")
	}
}

func TestManager_SensorUpdatesForwarded(t *testing.T) {
	m, fake := startManager(t)

	updates := make(chan SensorUpdate, 4)
	m.SensorChanged.Subscribe(func(u SensorUpdate) {
		select {
		case updates <- u:
		default:
		}
	})

	cfg := NewConfig()
	cfg.Sensors.Set(2, "HC_SR04")
	waitConfigured(t, m, cfg)

	fake.setReply(0x3C, []byte{mcu.SensorSlot(2), 4, 33, 0, 0, 0})
	select {
	case u := <-updates:
		if u.Port != 2 || u.Value != 33 {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sensor update")
	}
}

func TestManager_BatteryForwarded(t *testing.T) {
	m, fake := startManager(t)

	battery := make(chan mcu.BatteryStatus, 1)
	m.BatteryChanged.Subscribe(func(b mcu.BatteryStatus) {
		select {
		case battery <- b:
		default:
		}
	})

	fake.setReply(0x3C, []byte{mcu.SlotBattery, 4, 0, 55, 0, 66})
	select {
	case b := <-battery:
		if b.Main != 55 || b.Motor != 66 {
			t.Errorf("battery = %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no battery update")
	}
}

// ============================================================================
// Link and remote
// ============================================================================

func TestManager_ConnectionChanges(t *testing.T) {
	m, fake := startManager(t)
	status := m.Robot().Status()

	m.OnConnectionChanged(true)
	if status.ControllerStatus() != ControllerConnectedNoControl {
		t.Errorf("controller = %v", status.ControllerStatus())
	}
	if !fake.sent(0x05, []byte{1}) {
		t.Error("bluetooth led not lit")
	}

	cfg := NewConfig()
	cfg.Motors.Set(1, "RevvyMotor")
	waitConfigured(t, m, cfg)

	m.OnConnectionChanged(false)
	if status.ControllerStatus() != ControllerNotConnected {
		t.Errorf("controller = %v", status.ControllerStatus())
	}
	waitFor(t, "default configuration", func() bool {
		p, _ := m.Robot().Motors().Port(1)
		return p.ConfigName() == NotConfigured && status.RobotStatus() == StatusNotConfigured
	})
}

func TestManager_RemoteButtonStartsScript(t *testing.T) {
	m, _ := startManager(t)
	m.OnConnectionChanged(true)

	var runs atomic.Int32
	cfg := NewConfig()
	cfg.Scripts["press"] = ScriptSpec{Body: scripting.GoBody(func(*scripting.Env) error {
		runs.Add(1)
		return nil
	})}
	cfg.Buttons[4] = "press"
	waitConfigured(t, m, cfg)

	m.SubmitFrame(remote.Frame{Analog: []byte{127, 127}})
	waitFor(t, "controller detected", func() bool {
		return m.Robot().Status().ControllerStatus() == ControllerControlled
	})
	if m.Robot().Status().RobotStatus() != StatusConfigured {
		t.Errorf("status = %v", m.Robot().Status().RobotStatus())
	}

	var pressed remote.Frame
	pressed.Analog = []byte{127, 127}
	pressed.Buttons[4] = true
	m.SubmitFrame(pressed)
	waitFor(t, "button script", func() bool { return runs.Load() == 1 })
}

func TestManager_AnalogBindingPassesInput(t *testing.T) {
	m, _ := startManager(t)

	inputs := make(chan []byte, 8)
	cfg := NewConfig()
	cfg.Scripts["stick"] = ScriptSpec{Body: scripting.GoBody(func(env *scripting.Env) error {
		inputs <- env.Inputs()
		return nil
	})}
	cfg.Analog = []AnalogBinding{{Channels: []int{1, 0}, Script: "stick"}}
	waitConfigured(t, m, cfg)

	m.SubmitFrame(remote.Frame{Analog: []byte{10, 200}})
	select {
	case got := <-inputs:
		if !bytes.Equal(got, []byte{200, 10}) {
			t.Errorf("input = %v, want [200 10]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("analog script did not run")
	}
}

func TestManager_ScriptFinishedReported(t *testing.T) {
	m, _ := startManager(t)

	finished := make(chan ScriptRun, 4)
	m.ScriptFinished.Subscribe(func(r ScriptRun) { finished <- r })

	cfg := NewConfig()
	cfg.Scripts["broken"] = ScriptSpec{Body: scripting.GoBody(func(*scripting.Env) error {
		return errors.New("boom")
	})}
	cfg.Background = []string{"broken"}
	waitConfigured(t, m, cfg)

	select {
	case r := <-finished:
		if r.Name != "broken" || r.Runs != 1 || !r.Failed {
			t.Errorf("ScriptRun = %+v, want broken/1/failed", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("script run not reported")
	}
}

// ============================================================================
// Long messages
// ============================================================================

func newLongMessages(t *testing.T, m *Manager) (*longmessage.Handler, *longmessage.Store) {
	t.Helper()
	store := longmessage.NewStore(storage.NewMemoryStorage(), storage.NewMemoryStorage())
	h := longmessage.NewHandler(store)
	m.BindLongMessages(h)
	return h, store
}

func upload(t *testing.T, h *longmessage.Handler, typ longmessage.Type, data []byte) {
	t.Helper()
	sum := md5.Sum(data) //nolint:gosec // Upload digest format
	if err := h.SelectType(typ); err != nil {
		t.Fatal(err)
	}
	if err := h.InitTransfer(sum); err != nil {
		t.Fatal(err)
	}
	if err := h.Upload(data); err != nil {
		t.Fatal(err)
	}
	if err := h.Finalize(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestManager_ConfigurationUpload(t *testing.T) {
	m, _ := startManager(t)
	h, _ := newLongMessages(t, m)

	doc := `{"robotConfig": {"motors": [{"type": 1, "name": "arm"}]}, "blocklyList": []}`
	upload(t, h, longmessage.TypeConfiguration, []byte(doc))

	waitFor(t, "uploaded configuration", func() bool {
		p, _ := m.Robot().Motors().Port(1)
		return p.ConfigName() == "RevvyMotor" && m.Robot().Status().RobotStatus() == StatusConfigured
	})
	if m.Config().Motors.Names["arm"] != 1 {
		t.Errorf("names = %v", m.Config().Motors.Names)
	}
}

func TestManager_InvalidConfigurationFallsBackToDefault(t *testing.T) {
	m, _ := startManager(t)
	h, _ := newLongMessages(t, m)

	cfg := NewConfig()
	cfg.Motors.Set(1, "RevvyMotor")
	waitConfigured(t, m, cfg)

	upload(t, h, longmessage.TypeConfiguration, []byte(`{"robotConfig": {}}`))
	waitFor(t, "default configuration", func() bool {
		p, _ := m.Robot().Motors().Port(1)
		return p.ConfigName() == NotConfigured && m.Robot().Status().RobotStatus() == StatusNotConfigured
	})
}

func TestManager_FinalizeWithoutMessageIsIgnored(t *testing.T) {
	m, _ := startManager(t)
	h, _ := newLongMessages(t, m)

	if err := h.SelectType(longmessage.TypeConfiguration); err != nil {
		t.Fatal(err)
	}
	if err := h.Finalize(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	select {
	case <-m.Done():
		t.Fatal("manager exited on a missing message")
	default:
	}
}

func TestManager_TestKitRunsOnceThenRestoresDefault(t *testing.T) {
	m, fake := startManager(t)
	h, _ := newLongMessages(t, m)

	upload(t, h, longmessage.TypeTestKit, []byte(`robot.led.set_scenario(RingLed.ColorWheel)`))

	waitFor(t, "test kit run", func() bool {
		return fake.sent(0x31, []byte{byte(RingLedColorWheel)})
	})
	waitFor(t, "default configuration", func() bool {
		_, ok := m.Scripts().Script(TestKitScript)
		return !ok && m.Robot().Status().RobotStatus() == StatusNotConfigured
	})
}

func TestManager_FirmwareUploadRequestsUpdate(t *testing.T) {
	m, fake := startManager(t)
	h, _ := newLongMessages(t, m)

	var statuses []RobotStatus
	var mu sync.Mutex
	m.RobotStatusChanged.Subscribe(func(s RobotStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	upload(t, h, longmessage.TypeFramework, []byte("package"))

	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("no exit after framework upload")
	}
	if m.ExitCode() != ExitUpdateRequest {
		t.Errorf("ExitCode() = %d, want ExitUpdateRequest", m.ExitCode())
	}
	if !fake.sent(0x04, []byte{masterLedUpdating}) {
		t.Errorf("master led payloads = %v", fake.payloads(0x04))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) == 0 || statuses[len(statuses)-1] != StatusUpdating {
		t.Errorf("statuses = %v, want last Updating", statuses)
	}
}

func TestManager_CorruptMessageExits(t *testing.T) {
	m, _ := startManager(t)

	store := longmessage.NewStore(storage.NewMemoryStorage(), corruptStorage{})
	m.HandleLongMessage(longmessage.Update{Store: store, Type: longmessage.TypeConfiguration})

	select {
	case <-m.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("no exit on corrupt message")
	}
	if m.ExitCode() != ExitIntegrityError {
		t.Errorf("ExitCode() = %d, want ExitIntegrityError", m.ExitCode())
	}
}

// corruptStorage fails every read with an integrity error.
type corruptStorage struct{}

func (corruptStorage) ReadMetadata(context.Context, string) (storage.Metadata, error) {
	return storage.Metadata{}, storage.ErrIntegrity
}

func (corruptStorage) Write(context.Context, string, []byte, storage.Metadata) error {
	return nil
}

func (corruptStorage) Read(context.Context, string) ([]byte, error) {
	return nil, storage.ErrIntegrity
}
