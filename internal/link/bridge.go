package link

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/rover-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/rover-core/internal/longmessage"
	"github.com/nerrad567/rover-core/internal/mcu"
	"github.com/nerrad567/rover-core/internal/remote"
	"github.com/nerrad567/rover-core/internal/robot"
)

// QoS levels used on the link. Control frames are superseded by the next
// one; everything else must arrive.
const (
	qosLive     byte = 0
	qosReliable byte = 1
)

// MQTTClient is the subset of the MQTT client the bridge uses.
// *mqtt.Client implements it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Robot receives the decoded live traffic. *robot.Manager implements it.
type Robot interface {
	SubmitFrame(frame remote.Frame)
	OnConnectionChanged(connected bool)
}

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

// Bridge relays between the MQTT topics of one robot and the core.
//
// Thread Safety: handlers may run concurrently on the MQTT client's
// goroutines; long-message requests are serialised.
type Bridge struct {
	mqtt     MQTTClient
	topics   mqtt.Topics
	robot    Robot
	protocol *longmessage.Protocol
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc

	// lmMu orders each long-message request with its answer.
	lmMu sync.Mutex

	connMu    sync.Mutex
	connected bool
}

// NewBridge returns a bridge for the topics of one robot.
func NewBridge(client MQTTClient, topics mqtt.Topics, r Robot, protocol *longmessage.Protocol) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:     client,
		topics:   topics,
		robot:    r,
		protocol: protocol,
		logger:   noopLogger{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetLogger sets the bridge logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the inbound topics.
//
// Parameters:
//   - ctx: Bounds long-message storage operations until Stop
//
// Returns:
//   - error: If a subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	subs := []struct {
		topic   string
		qos     byte
		handler mqtt.MessageHandler
	}{
		{b.topics.LiveControl(), qosLive, b.handleControl},
		{b.topics.LiveConnection(), qosReliable, b.handleConnection},
		{b.topics.LongMessageWrite(), qosReliable, b.handleLongMessageWrite},
		{b.topics.LongMessageRead(), qosReliable, b.handleLongMessageRead},
	}
	for _, s := range subs {
		if err := b.mqtt.Subscribe(s.topic, s.qos, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.logger.Debug("subscribed", "topic", s.topic)
	}

	b.logger.Info("link bridge started", "robot", b.topics.Robot)
	return nil
}

// Stop cancels in-flight long-message operations.
func (b *Bridge) Stop() {
	b.cancel()
	b.logger.Info("link bridge stopped")
}

// LinkLost treats a lost broker connection as the controlling device
// going away.
func (b *Bridge) LinkLost() {
	b.setConnected(false)
}

// =============================================================================
// Inbound
// =============================================================================

func (b *Bridge) handleControl(_ string, payload []byte) error {
	frame, err := DecodeFrame(payload)
	if err != nil {
		return err
	}
	b.robot.SubmitFrame(frame)
	return nil
}

func (b *Bridge) handleConnection(_ string, payload []byte) error {
	switch string(payload) {
	case "1":
		b.setConnected(true)
	case "0", "":
		b.setConnected(false)
	default:
		return fmt.Errorf("invalid connection payload %q", payload)
	}
	return nil
}

// setConnected forwards presence changes only.
func (b *Bridge) setConnected(connected bool) {
	b.connMu.Lock()
	changed := b.connected != connected
	b.connected = connected
	b.connMu.Unlock()

	if changed {
		b.logger.Info("controlling device presence changed", "connected", connected)
		b.robot.OnConnectionChanged(connected)
	}
}

func (b *Bridge) handleLongMessageWrite(_ string, payload []byte) error {
	b.lmMu.Lock()
	defer b.lmMu.Unlock()

	result := longmessage.ResultInvalidLength
	if header, data, ok := longmessage.DecodeWrite(payload); ok {
		result = b.protocol.HandleWrite(b.ctx, header, data)
	}
	return b.mqtt.Publish(b.topics.LongMessageResult(), []byte{byte(result)}, qosReliable, false)
}

func (b *Bridge) handleLongMessageRead(_ string, _ []byte) error {
	b.lmMu.Lock()
	defer b.lmMu.Unlock()

	return b.mqtt.Publish(b.topics.LongMessageStatus(), b.protocol.HandleRead(b.ctx), qosReliable, false)
}

// =============================================================================
// Outbound
// =============================================================================

// StatusMessage is the retained robot status payload.
type StatusMessage struct {
	Robot      string             `json:"robot"`
	Controller string             `json:"controller"`
	Version    robot.Version      `json:"version"`
	Uptime     float64            `json:"uptime_seconds"`
	Scripts    []robot.ScriptInfo `json:"scripts"`
	Timestamp  time.Time          `json:"timestamp"`
}

// PublishStatus publishes the robot status as a retained message.
func (b *Bridge) PublishStatus(snap robot.Snapshot) error {
	return b.publishJSON(b.topics.StatusRobot(), StatusMessage{
		Robot:      snap.RobotStatus,
		Controller: snap.ControllerStatus,
		Version:    snap.Version,
		Uptime:     snap.Uptime,
		Scripts:    snap.Scripts,
		Timestamp:  time.Now().UTC(),
	}, qosReliable, true)
}

// PublishBattery publishes the battery levels as a retained message.
func (b *Bridge) PublishBattery(battery mcu.BatteryStatus) error {
	return b.publishJSON(b.topics.StatusBattery(), battery, qosReliable, true)
}

// PublishMotor publishes a live motor report.
func (b *Bridge) PublishMotor(u robot.MotorUpdate) error {
	return b.publishJSON(b.topics.StatusMotor(u.Port), u, qosLive, false)
}

// PublishSensor publishes a live sensor report.
func (b *Bridge) PublishSensor(u robot.SensorUpdate) error {
	return b.publishJSON(b.topics.StatusSensor(u.Port), u, qosLive, false)
}

func (b *Bridge) publishJSON(topic string, v any, qos byte, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, payload, qos, retained)
}
