package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MessageHandler receives one inbound message. paho runs handlers on its
// own goroutines, so they must return quickly. A returned error is logged
// and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the broker side of the robot link.
//
// It owns a single paho connection, keeps the robot's presence topic up to
// date and replays subscriptions after paho reconnects. All methods are
// safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	up atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	log          Logger
}

// Connect dials the broker described by cfg and announces robot as online.
//
// The will message marks the robot offline if the process dies without
// calling Close. paho keeps reconnecting in the background after the first
// connection succeeds; the first one itself must succeed within
// defaultConnectTimeout.
//
// Parameters:
//   - cfg: broker, auth and reconnect settings
//   - robot: robot name used as the second topic level
//
// Returns:
//   - *Client: connected client
//   - error: wrapping ErrConnectionFailed when the broker is unreachable
func Connect(cfg config.MQTTConfig, robot string) (*Client, error) {
	c := newClient(cfg, NewTopics(cfg.TopicPrefix, robot))

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logger().Warn("broker link reconnecting", "robot", robot, "client_id", cfg.Broker.ClientID)
	})

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs asynchronously; mark the link up here so
	// callers see IsConnected right after Connect returns.
	c.up.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, topics Topics) *Client {
	return &Client{
		cfg:    cfg,
		topics: topics,
		subs:   make(map[string]subscription),
	}
}

func (c *Client) handleConnect() {
	c.up.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subs {
		// Failures surface again on the next reconnect.
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	cb := c.onConnect
	c.mu.RUnlock()

	c.announce(true)
	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.up.Store(false)

	c.mu.RLock()
	cb := c.onDisconnect
	c.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// announce publishes the retained presence message. It does not wait for
// the broker when going online; the offline notice is awaited by Close.
func (c *Client) announce(online bool) pahomqtt.Token {
	payload := onlinePayload(c.cfg.Broker.ClientID, c.topics.Robot)
	if !online {
		payload = offlinePayload(c.cfg.Broker.ClientID, c.topics.Robot)
	}
	return c.client.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close marks the robot offline and disconnects. It is safe on a client
// that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(false).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Topics returns the topic builders of the connected robot.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports the last known link state as seen by paho.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers cb to run after every (re)connect, once
// subscriptions have been restored.
func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetOnDisconnect registers cb to run whenever paho loses the connection.
func (c *Client) SetOnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

// SetLogger sets the logger used for handler failures. nil silences it.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.log = logger
	c.mu.Unlock()
}

func (c *Client) logger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.log == nil {
		return noopLogger{}
	}
	return c.log
}

// wrapHandler adapts h to paho, logging returned errors and recovering
// panics so one bad message cannot kill paho's router goroutine.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger().Error("broker message handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			c.logger().Warn("broker message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}
