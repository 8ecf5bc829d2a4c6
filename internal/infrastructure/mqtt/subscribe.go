package mqtt

import (
	"fmt"
)

// Subscribe registers interest in topic. Matching messages are passed to
// the message handler installed with SetHandlers, each on its own goroutine.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "taphome/starlink/+/set"
//   - # (multi-level): "taphome/starlink/#"
//
// Subscriptions do not survive a reconnect; the caller subscribes again
// after each Connect.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.dispatch)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
