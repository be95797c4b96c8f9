package watchreload

import (
	"context"
)

// Option represents a functional option for configuring an Engine
type Option func(*Engine) error

// AbortHandler receives abort-class failures of queued update requests, which
// have no caller left to return them to. It is expected to trigger the full
// reload fallback.
type AbortHandler func(ctx context.Context, req UpdateRequest, err error)

// WithLogger sets the logger for the engine and its registry
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = orNop(logger)
		return nil
	}
}

// WithModuleExtension sets the extension appended to module paths.
// Default: ".js"
func WithModuleExtension(ext string) Option {
	return func(e *Engine) error {
		e.moduleExt = ext
		return nil
	}
}

// WithAbortHandler sets the handler for aborts of queued requests
func WithAbortHandler(handler AbortHandler) Option {
	return func(e *Engine) error {
		e.onAbort = handler
		return nil
	}
}

// WithObserver registers an observer on the engine event bus, optionally
// filtered by event type.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(e *Engine) error {
		e.pendingObservers = append(e.pendingObservers, pendingObserver{observer: observer, eventTypes: eventTypes})
		return nil
	}
}

type pendingObserver struct {
	observer   Observer
	eventTypes []string
}
