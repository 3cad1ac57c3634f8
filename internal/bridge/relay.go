package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/ashmarby/folioline-core/internal/infrastructure/mqtt"
	"github.com/ashmarby/folioline-core/internal/realtime"
)

// IngestSource is the subscription half of the relay. The mqtt client
// satisfies it.
type IngestSource interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// ingestEnvelope is the JSON shape sibling services publish on
// folioline/ingest/* to inject an event.
type ingestEnvelope struct {
	EventType string          `json:"event_type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
}

// StartIngest subscribes to the inbound ingest topics and feeds valid
// envelopes through the notifier. Malformed or out-of-set messages are
// rejected by event construction and logged there; the subscription
// itself survives them.
func (n *Notifier) StartIngest(source IngestSource, qos byte) error {
	topic := mqtt.Topics{}.IngestAll()
	err := source.Subscribe(topic, qos, func(topic string, payload []byte) error {
		return n.handleIngest(topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to ingest topics: %w", err)
	}

	n.logger.Info("relay ingest started", "topic", topic)
	return nil
}

// handleIngest parses one inbound message and dispatches it.
func (n *Notifier) handleIngest(topic string, payload []byte) error {
	var env ingestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decoding ingest envelope on %s: %w", topic, err)
	}
	if env.EventType == "" || env.RoomID == "" {
		return fmt.Errorf("ingest envelope on %s missing event_type or room_id", topic)
	}

	n.Notify(realtime.Type(env.EventType), env.RoomID, env.Payload)
	return nil
}
