package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as the bridge's broker transport.
//
// Connect and Disconnect may be called repeatedly; reconnection policy is
// left to the caller. Inbound messages and connection loss are reported
// through the handlers installed with SetHandlers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	onMessage  func(topic string, payload []byte)
	onLost     func(err error)
	callbackMu sync.RWMutex

	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates a disconnected client. willTopic receives a retained
// "offline" message if the connection drops without a clean disconnect.
func New(cfg config.MQTTConfig, willTopic string, logger Logger) (*Client, error) {
	opts, err := buildClientOptions(cfg, willTopic)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, logger: logger}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// Connect establishes a connection to the broker, waiting until it
// succeeds, fails, times out or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()
	return nil
}

// Disconnect closes the connection, allowing pending operations to finish.
// The connection-lost handler is not called.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected || c.client.IsConnectionOpen() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// SetHandlers installs the inbound message and connection-lost callbacks.
// Either may be nil.
func (c *Client) SetHandlers(onMessage func(topic string, payload []byte), onLost func(err error)) {
	c.callbackMu.Lock()
	c.onMessage = onMessage
	c.onLost = onLost
	c.callbackMu.Unlock()
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// dispatch forwards an inbound message with panic recovery.
func (c *Client) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	c.callbackMu.RLock()
	callback := c.onMessage
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(msg.Topic(), msg.Payload())
	}
}
