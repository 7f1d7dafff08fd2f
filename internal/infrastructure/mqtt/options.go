package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // ms
	defaultKeepAlive         = 30 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions maps the broker section of the config onto paho.
//
// Sessions are clean: the robot re-subscribes itself on every connect,
// and stale control frames queued by the broker while the robot was away
// must never be replayed to the motors.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	var tlsCfg *tls.Config
	if cfg.Broker.TLS {
		scheme = "ssl"
		tlsCfg = &tls.Config{MinVersion: tlsMinVersion}
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}
	return opts
}

// presence is the retained message on {prefix}/{robot}/system/status.
type presence struct {
	Status    string `json:"status"`
	Robot     string `json:"robot"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(status, reason, clientID, robot string) []byte {
	p := presence{
		Status:    status,
		Robot:     robot,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(p) //nolint:errcheck // plain strings always marshal
	return b
}

func onlinePayload(clientID, robot string) []byte {
	return presencePayload("online", "", clientID, robot)
}

func offlinePayload(clientID, robot string) []byte {
	return presencePayload("offline", "graceful_shutdown", clientID, robot)
}

// configureLWT has the broker mark the robot offline (QoS 1, retained)
// when the connection drops without a Close.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	will := presencePayload("offline", "unexpected_disconnect", clientID, topics.Robot)
	opts.SetBinaryWill(topics.SystemStatus(), will, 1, true)
}
