// Package watchreload provides the module hot-update engine of a live-update
// client together with the Observer interfaces used to publish what it does.
// Events use the CloudEvents specification so that transport commands and
// engine notifications share one envelope.
package watchreload

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of events.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in.
	// Observers are called synchronously in registration order, so they
	// should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications.
	// If eventTypes is empty, the observer receives all events.
	// Registering the same observer ID again replaces its filter.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to every interested observer in
	// registration order. Observer errors and panics are logged, not returned.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the engine. Following CloudEvents, these use
// reverse domain notation.
const (
	EventTypeUpdateQueued    = "com.watchreload.update.queued"
	EventTypeUpdateStarted   = "com.watchreload.update.started"
	EventTypeUpdateCompleted = "com.watchreload.update.completed"
	EventTypeUpdateNoop      = "com.watchreload.update.noop"
	EventTypeUpdateAborted   = "com.watchreload.update.aborted"

	EventTypeModuleRegistered = "com.watchreload.module.registered"
	EventTypeModuleDisposed   = "com.watchreload.module.disposed"
	EventTypeModuleRedefined  = "com.watchreload.module.redefined"
	EventTypeModuleLoadFailed = "com.watchreload.module.load_failed"
)

// CommandEventPrefix prefixes the event type of every command received from
// the update server, e.g. "com.watchreload.command.updateModule".
const CommandEventPrefix = "com.watchreload.command."

// CommandEventType returns the event type used for a server command.
func CommandEventType(command string) string {
	return CommandEventPrefix + command
}

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
