package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads at 1 MiB, in line with common
// broker limits. Sync run events and entity documents sit far below this.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to take it.
//
// Retained messages replace the broker's stored value for the topic and
// are handed to every new subscriber; use them for presence and status,
// never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: not acknowledged within %v", ErrPublishFailed, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// validateTopicQoS rejects empty topics and QoS levels above 2.
func validateTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
