package mqtt

import (
	"fmt"
)

// Maximum payload size for relay messages (1MB), aligned with typical
// broker limits.
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified topic.
//
// QoS 0 is fire-and-forget, 1 guarantees delivery (may duplicate),
// 2 guarantees exactly-once at higher overhead. Retained messages are
// stored by the broker and delivered to new subscribers immediately;
// use them for status topics, never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishEvent publishes to an event mirror topic at the configured QoS,
// not retained.
func (c *Client) PublishEvent(eventType string, payload []byte) error {
	return c.Publish(Topics{}.Event(eventType), payload, byte(c.cfg.QoS), false)
}
