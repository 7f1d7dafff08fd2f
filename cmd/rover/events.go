package main

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/rover-core/internal/api"
	"github.com/nerrad567/rover-core/internal/infrastructure/logging"
	"github.com/nerrad567/rover-core/internal/mcu"
	"github.com/nerrad567/rover-core/internal/robot"
)

// dispatcher runs queued sink calls on one goroutine, off the robot loop.
// A full queue drops the call.
type dispatcher struct {
	queue   chan func()
	log     *logging.Logger
	dropped atomic.Uint64
}

func newDispatcher(size int, log *logging.Logger) *dispatcher {
	return &dispatcher{queue: make(chan func(), size), log: log}
}

func (d *dispatcher) post(fn func()) {
	select {
	case d.queue <- fn:
	default:
		if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
			d.log.Warn("event queue full, dropping events", "dropped", n)
		}
	}
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-d.queue:
			fn()
		}
	}
}

// linkPublisher is the outbound side of the wireless link.
type linkPublisher interface {
	PublishStatus(snap robot.Snapshot) error
	PublishBattery(battery mcu.BatteryStatus) error
	PublishMotor(u robot.MotorUpdate) error
	PublishSensor(u robot.SensorUpdate) error
}

// broadcaster fans events out to WebSocket clients.
type broadcaster interface {
	Broadcast(channel string, payload any)
}

// recorder writes telemetry to the time-series database.
type recorder interface {
	WriteBattery(main, motor, charger int)
	WriteMotorStatus(port int, position int32, speed float32, power int8)
	WriteSensorValue(port int, value any)
	WriteScriptRun(script string, runs int, failed bool)
}

// snapshotter is the part of the robot manager the fanout reads.
type snapshotter interface {
	Snapshot() robot.Snapshot
}

// fanout delivers robot events to every configured sink. Nil sinks are
// skipped.
type fanout struct {
	link     linkPublisher
	hub      broadcaster
	recorder recorder
	log      *logging.Logger
}

// subscribe takes the single subscription of each manager event.
func (f *fanout) subscribe(m *robot.Manager, d *dispatcher) {
	m.RobotStatusChanged.Subscribe(func(s robot.RobotStatus) {
		d.post(func() {
			f.broadcast(api.ChannelRobotStatus, map[string]string{"status": s.String()})
			f.publishStatus(m)
		})
	})
	m.ControllerStatusChanged.Subscribe(func(s robot.ControllerStatus) {
		d.post(func() {
			f.broadcast(api.ChannelControllerStatus, map[string]string{"status": s.String()})
			f.publishStatus(m)
		})
	})
	m.BatteryChanged.Subscribe(func(b mcu.BatteryStatus) {
		d.post(func() { f.battery(b) })
	})
	m.MotorChanged.Subscribe(func(u robot.MotorUpdate) {
		d.post(func() { f.motor(u) })
	})
	m.SensorChanged.Subscribe(func(u robot.SensorUpdate) {
		d.post(func() { f.sensor(u) })
	})
	m.ScriptFinished.Subscribe(func(r robot.ScriptRun) {
		d.post(func() { f.scriptRun(r) })
	})
}

func (f *fanout) broadcast(channel string, payload any) {
	if f.hub != nil {
		f.hub.Broadcast(channel, payload)
	}
}

func (f *fanout) publishStatus(m snapshotter) {
	if f.link == nil {
		return
	}
	if err := f.link.PublishStatus(m.Snapshot()); err != nil {
		f.log.Debug("publishing status failed", "error", err)
	}
}

func (f *fanout) battery(b mcu.BatteryStatus) {
	f.broadcast(api.ChannelBattery, b)
	if f.link != nil {
		if err := f.link.PublishBattery(b); err != nil {
			f.log.Debug("publishing battery failed", "error", err)
		}
	}
	if f.recorder != nil {
		f.recorder.WriteBattery(b.Main, b.Motor, b.ChargerStatus)
	}
}

func (f *fanout) motor(u robot.MotorUpdate) {
	if f.link != nil {
		if err := f.link.PublishMotor(u); err != nil {
			f.log.Debug("publishing motor status failed", "port", u.Port, "error", err)
		}
	}
	if f.recorder != nil {
		f.recorder.WriteMotorStatus(u.Port, u.Status.Position, u.Status.Speed, u.Status.Power)
	}
}

func (f *fanout) sensor(u robot.SensorUpdate) {
	if f.link != nil {
		if err := f.link.PublishSensor(u); err != nil {
			f.log.Debug("publishing sensor value failed", "port", u.Port, "error", err)
		}
	}
	if f.recorder != nil {
		f.recorder.WriteSensorValue(u.Port, u.Value)
	}
}

func (f *fanout) scriptRun(r robot.ScriptRun) {
	if f.recorder != nil {
		f.recorder.WriteScriptRun(r.Name, r.Runs, r.Failed)
	}
}
