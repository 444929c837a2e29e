package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/walletauth/ports"
)

// DefaultTopic is the topic session events are published on
const DefaultTopic = "walletauth.session"

// EventTypeMetadataKey holds the event type in message metadata so subscribers can filter without decoding
const EventTypeMetadataKey = "event_type"

// WatermillPublisher implements ports.EventPublisher using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher. An empty topic selects DefaultTopic.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishSessionEvent publishes a session event
func (p *WatermillPublisher) PublishSessionEvent(ctx context.Context, event ports.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(EventTypeMetadataKey, string(event.Type))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// DecodeSessionEvent decodes the payload of a message published by WatermillPublisher
func DecodeSessionEvent(msg *message.Message) (ports.SessionEvent, error) {
	var event ports.SessionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return ports.SessionEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
