package mqtt

import (
	"fmt"
	"slices"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayload caps one publish. The largest bridge message is a state
// document for a light with 82 zones, far below this.
const maxPayload = 256 << 10

// Publish sends payload on topic and waits for the broker to accept it.
// The bridge retains light state and health; commands and acks are never
// retained.
//
// Parameters:
//   - topic: Exact topic, no wildcards
//   - payload: Encoded message
//   - qos: 0, 1 or 2
//   - retained: Whether late subscribers receive the last value
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge,
//     ErrNotConnected or a wrapped ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed); err != nil {
		c.stats.publishErrors.Add(1)
		return err
	}
	c.stats.published.Add(1)
	return nil
}

// Subscribe routes messages matching topic (wildcards allowed) to handler.
// The subscription is tracked once the broker grants it and is re-applied
// after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Subscribe(topic, qos, c.wrap(handler)), ErrSubscribeFailed); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Subscriptions lists the tracked topic filters in order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.RUnlock()
	slices.Sort(topics)
	return topics
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}

// await waits for a paho token and folds a timeout or broker error into base.
func await(token pahomqtt.Token, base error) error {
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: no reply within %v", base, operationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", base, err)
	}
	return nil
}
