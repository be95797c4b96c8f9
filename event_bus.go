package watchreload

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // set of event types this observer is interested in
	registeredAt time.Time
}

// EventBus is the single Subject implementation. The Engine and the
// transport client both own one and expose it through delegation.
//
// Unlike a fire-and-forget notifier, EventBus delivers synchronously and in
// registration order: server commands must be handled in delivery order.
type EventBus struct {
	source string
	logger Logger

	mu        sync.RWMutex
	observers map[string]*observerRegistration
	order     []string
}

// NewEventBus creates an event bus. source becomes the CloudEvents source of
// events emitted through Emit.
func NewEventBus(source string, logger Logger) *EventBus {
	return &EventBus{
		source:    source,
		logger:    orNop(logger),
		observers: make(map[string]*observerRegistration),
	}
}

// RegisterObserver adds an observer. If eventTypes is empty, the observer
// receives all events.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := observer.ObserverID()
	if _, exists := b.observers[id]; !exists {
		b.order = append(b.order, id)
	}
	b.observers[id] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	b.logger.Debug("Observer registered", "observerID", id, "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer from receiving notifications.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := observer.ObserverID()
	if _, exists := b.observers[id]; !exists {
		return nil
	}
	delete(b.observers, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.logger.Debug("Observer unregistered", "observerID", id)
	return nil
}

// NotifyObservers sends a CloudEvent to all interested observers.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	// Snapshot so observers may (un)register from inside OnEvent.
	b.mu.RLock()
	targets := make([]*observerRegistration, 0, len(b.order))
	for _, id := range b.order {
		registration := b.observers[id]
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		targets = append(targets, registration)
	}
	b.mu.RUnlock()

	for _, registration := range targets {
		b.deliver(ctx, registration.observer, event)
	}
	return nil
}

func (b *EventBus) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		b.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// Emit builds a CloudEvent with the bus source and notifies observers.
func (b *EventBus) Emit(ctx context.Context, eventType string, data interface{}) {
	if b == nil {
		return
	}
	event := NewCloudEvent(eventType, b.source, data, nil)
	if err := b.NotifyObservers(ctx, event); err != nil {
		b.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

// GetObservers returns information about currently registered observers.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.order))
	for _, id := range b.order {
		registration := b.observers[id]
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           id,
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// String identifies the bus in logs.
func (b *EventBus) String() string {
	return fmt.Sprintf("EventBus(%s)", b.source)
}
