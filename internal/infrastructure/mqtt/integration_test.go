//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg, "it")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectTest(t, "rover-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, "it")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_Close(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "rover-int-close"
	client, err := Connect(cfg, "it")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

// TestIntegration_SubscriptionTracking verifies subscriptions are tracked
// for restoration after a reconnect.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectTest(t, "rover-int-sub-track")
	topics := client.Topics()

	subscribed := []string{topics.LiveControl(), topics.LiveConnection(), topics.LongMessageWrite()}
	handler := func(string, []byte) error { return nil }

	for _, topic := range subscribed {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(subscribed) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(subscribed))
	}

	if err := client.Unsubscribe(subscribed[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(subscribed[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", subscribed[0])
	}
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := connectTest(t, "rover-int-pub")
	sub := connectTest(t, "rover-int-sub")

	topic := sub.Topics().LiveControl()
	expected := []byte{127, 127, 0, 0, 0, 1}

	received := make(chan []byte, 1)
	var once sync.Once
	err := sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- p })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, expected, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != string(expected) {
			t.Errorf("Received = %v, want %v", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_WildcardSubscription(t *testing.T) {
	pub := connectTest(t, "rover-int-wild-pub")
	sub := connectTest(t, "rover-int-wild-sub")
	topics := sub.Topics()

	var mu sync.Mutex
	got := make(map[string]bool)
	err := sub.Subscribe(topics.AllStatus(), 1, func(topic string, _ []byte) error {
		mu.Lock()
		got[topic] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	published := []string{topics.StatusBattery(), topics.StatusMotor(1), topics.StatusSensor(2)}
	for _, topic := range published {
		if err := pub.PublishString(topic, `{}`, 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", topic, err)
		}
	}
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, topic := range published {
		if !got[topic] {
			t.Errorf("no message on %s", topic)
		}
	}
}

func TestIntegration_HandlerErrorLogged(t *testing.T) {
	client := connectTest(t, "rover-int-handler-err")
	logger := &mockLogger{}
	client.SetLogger(logger)

	topic := client.Topics().LongMessageRead()
	called := make(chan struct{}, 1)
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		called <- struct{}{}
		return errors.New("handler error")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := client.PublishString(topic, "x", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}
