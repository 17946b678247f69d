// Package events carries the in-process publish/subscribe plumbing the
// domain modules talk over. The event definitions themselves live with the
// domains in internal/events; this package only knows the contract.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event put on the bus.
type Event interface {
	// EventName identifies the event type; handlers subscribe by this name.
	EventName() string
	// OccurredAt reports when the event happened.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp every event carries.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt reports when the event happened.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus moves events from publishers to subscribed handlers.
type Bus interface {
	// Publish hands the event to every handler subscribed to its name.
	// Handlers run asynchronously; the publisher never waits.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers inline and returns their joined errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an event name, matched against
	// Event.EventName at publish time.
	Subscribe(eventName string, handler Handler)
}
