package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hearthlabs/hearthsync/internal/infrastructure/config"
)

// MessageHandler receives one inbound message. Handlers run on paho's
// delivery goroutines and must not block. A returned error is logged and
// the message is acknowledged anyway: the statestream is at-least-once and
// the next full sync self-corrects.
type MessageHandler func(topic string, payload []byte) error

// Logger is the slice of logging.Logger the transport needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the statestream transport: one broker connection carrying the
// inbound entity statestream and the outbound sync events, with presence
// retained on the system status topic.
//
// Subscriptions are tracked and replayed after every reconnect. All
// methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	mu        sync.RWMutex
	connected bool
	subs      map[string]subscription

	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Presence states retained on the system status topic. The "lost" variant
// is installed as the broker will: it marks a session that died without a
// clean disconnect, where "offline" means a deliberate shutdown.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"
	presenceLost    = "lost"
)

// presencePayload renders the retained status document.
func presencePayload(status, clientID string) []byte {
	doc, _ := json.Marshal(struct { //nolint:errcheck // fixed shape, cannot fail
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Timestamp string `json:"timestamp"`
	}{status, clientID, time.Now().UTC().Format(time.RFC3339)})
	return doc
}

// Connect dials the configured broker and blocks until the session is up
// or the connect timeout passes. The returned client keeps itself
// connected from then on; reconnect state is observable via SetOnConnect
// and SetOnDisconnect.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := clientOptions(cfg)
	opts.SetWill(Topics{}.SystemStatus(), string(presencePayload(presenceLost, cfg.Broker.ClientID)), 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no broker response within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback fires asynchronously; flip the flag here so
	// IsConnected holds as soon as Connect returns.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// connectionUp replays tracked subscriptions and publishes presence after
// every (re)connect.
func (c *Client) connectionUp() {
	c.mu.Lock()
	c.connected = true
	replay := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		replay[topic] = sub
	}
	notify := c.onConnect
	c.mu.Unlock()

	for topic, sub := range replay {
		c.paho.Subscribe(topic, sub.qos, c.deliver(sub.handler))
	}
	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, presencePayload(presenceOnline, c.cfg.Broker.ClientID))

	if notify != nil {
		notify()
	}
}

func (c *Client) connectionDown(err error) {
	c.mu.Lock()
	c.connected = false
	notify := c.onDisconnect
	c.mu.Unlock()

	if notify != nil {
		notify(err)
	}
}

// Close publishes the offline presence, then disconnects with a quiesce
// window for in-flight messages. Safe on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			presencePayload(presenceOffline, c.cfg.Broker.ClientID))
		token.WaitTimeout(opTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMS)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports whether the broker session is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect registers a callback for initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for lost connections.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger attaches a logger for handler errors and panics. Without one
// they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// deliver adapts a MessageHandler for paho, containing panics and logging
// handler errors so one bad payload cannot take down the feed.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.log(); log != nil {
					log.Error("statestream handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.log(); log != nil {
				log.Warn("statestream handler error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
