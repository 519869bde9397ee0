// Package eventbus provides the messaging infrastructure between the web
// layer, the runner and the scheduler. Inbound provider events, timer
// firings and lifecycle notifications all travel through it.
package eventbus

import (
	"context"

	"github.com/flowzap/flowzap/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers the handler for an event type. Registration must
	// happen before Subscribe.
	Handle(eventType events.EventType, handler EventHandler)

	// Subscribe starts consuming the topic until the context is cancelled.
	Subscribe(ctx context.Context, topic string) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
