package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flowzap/flowzap/pkg/events"
)

// WatermillEventBus adapts any watermill publisher/subscriber pair to the
// EventBus interface. Message payloads are JSON with the event type and
// partition key carried in metadata.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, topic, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventKeyMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	return eb.publisher.Publish(topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) {
	eb.subscriptions[eventType] = handler
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, topic string) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event := newEvent(eventType)
			if event == nil {
				msg.Nack()

				continue
			}

			if err := json.Unmarshal(msg.Payload, event); err != nil {
				msg.Nack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

// newEvent returns an empty event value for the type, or nil for types that
// never cross the bus.
func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.InboundMessageEventType:
		return &events.InboundMessage{}
	case events.DeliveryStatusEventType:
		return &events.DeliveryStatus{}
	case events.TemplateStatusEventType:
		return &events.TemplateStatus{}
	case events.TimerFiredEventType:
		return &events.TimerFired{}
	case events.ExecutionStartedEventType:
		return &events.ExecutionStarted{}
	case events.ExecutionCompletedEventType:
		return &events.ExecutionCompleted{}
	case events.ExecutionFailedEventType:
		return &events.ExecutionFailed{}
	case events.ExecutionAbortedEventType:
		return &events.ExecutionAborted{}
	case events.ExecutionSuspendedEventType:
		return &events.ExecutionSuspended{}
	case events.CompliancePausedEventType:
		return &events.CompliancePaused{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

var _ EventBus = (*WatermillEventBus)(nil)
