package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hearthlabs/hearthsync/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial dial in Connect.
	connectTimeout = 10 * time.Second

	// opTimeout bounds publish/subscribe/unsubscribe acknowledgments.
	opTimeout = 5 * time.Second

	// disconnectQuiesceMS is the grace window paho gets to flush in-flight
	// messages on Close.
	disconnectQuiesceMS = 1000

	keepAlive = 60 * time.Second
	maxQoS    = 2
)

// clientOptions renders the paho options for the configured broker: clean
// session, auto-reconnect with the configured backoff, TLS 1.2+ when
// enabled.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}
