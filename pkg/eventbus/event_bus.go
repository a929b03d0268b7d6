// Package eventbus carries conductor events between the API, the dispatcher
// and the execution engine.
package eventbus

import (
	"context"
	"fmt"

	"github.com/medallionhq/conductor/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event struct.
type EventHandler func(ctx context.Context, event any) error

// Typed adapts a handler written for one concrete event struct. Events of
// any other type are rejected with an error.
func Typed[T any](handle func(ctx context.Context, event *T) error) EventHandler {
	return func(ctx context.Context, event any) error {
		typed, ok := event.(*T)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		return handle(ctx, typed)
	}
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
