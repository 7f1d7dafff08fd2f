package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
	"github.com/nerrad567/rover-core/internal/infrastructure/logging"
	"github.com/nerrad567/rover-core/internal/remote"
)

// Broadcast channels.
const (
	ChannelRobotStatus        = "robot.status"
	ChannelControllerStatus   = "controller.status"
	ChannelBattery            = "battery"
	ChannelLongMessageUpdated = "longmessage.updated"
)

// Hub fans robot events out to WebSocket clients and feeds their control
// frames back to the robot.
//
// A nil *Hub is usable: Broadcast drops the event and ClientCount is 0.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	sink    func(remote.Frame)

	dropped atomic.Uint64
}

// NewHub creates a hub. It does nothing until Run is called.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetFrameSink sets the receiver of control frames sent by clients.
func (h *Hub) SetFrameSink(sink func(remote.Frame)) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

func (h *Hub) submitFrame(frame remote.Frame) bool {
	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()
	if sink == nil {
		return false
	}
	sink(frame)
	return true
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds client to the broadcast set.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes client. The send channel is closed by whichever
// caller actually removed it, so repeated calls are harmless.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends payload as an event on channel to every subscribed
// client. Clients whose buffer is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	if h == nil {
		return
	}
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	// Client locks are taken only after the hub lock is released.
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.isSubscribed(channel) && !c.trySend(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were not delivered to slow clients.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
