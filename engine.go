package watchreload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// EngineStatus is the state of the update pipeline.
type EngineStatus int

const (
	// StatusIdle means no update is being applied.
	StatusIdle EngineStatus = iota
	// StatusApplying means one update is in flight; new requests queue.
	StatusApplying
)

func (s EngineStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusApplying:
		return "applying"
	default:
		return fmt.Sprintf("EngineStatus(%d)", int(s))
	}
}

// UpdateRequest is one change notification from the update server.
type UpdateRequest struct {
	Path        string `json:"path"`
	Fingerprint string `json:"hash,omitempty"`
	Removed     bool   `json:"removed,omitempty"`
}

// Loader is the external module loader. ResolveURL maps ids to URLs and
// Load fetches and executes a module, blocking until it completed. Loaders
// report modules through Engine.Register while executing them.
type Loader interface {
	PathResolver
	Load(ctx context.Context, id string) error
}

// UpdateResult describes what one update request did. It is the payload of
// the update events.
type UpdateResult struct {
	UpdateID  string        `json:"updateId"`
	Request   UpdateRequest `json:"request"`
	ModuleID  string        `json:"moduleId,omitempty"`
	Noop      bool          `json:"noop,omitempty"`
	Outdated  []string      `json:"outdated,omitempty"`
	Accepting []string      `json:"accepting,omitempty"`
	LoadError string        `json:"loadError,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Engine is the module hot-update engine. It owns the Registry, admits one
// update request at a time and queues the others in arrival order.
//
// Applying a request:
//   - resolve the path, skip it when the fingerprint did not change
//   - compute the outdated ancestors (aborting on declines)
//   - unregister and dispose the changed module, then ask the loader for it
//   - dispose and re-invoke the factory of every outdated module
//   - dispatch accept callbacks of modules whose accepted dependency changed
type Engine struct {
	registry *Registry
	loader   Loader
	logger   Logger
	events   *EventBus
	onAbort  AbortHandler

	moduleExt        string
	pendingObservers []pendingObserver

	mu      sync.Mutex
	status  EngineStatus
	pending *queue.Queue
}

// NewEngine creates an engine driving the given loader.
func NewEngine(loader Loader, opts ...Option) (*Engine, error) {
	if loader == nil {
		return nil, ErrLoaderNil
	}

	e := &Engine{
		loader:  loader,
		logger:  NopLogger{},
		status:  StatusIdle,
		pending: queue.New(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	registry, err := NewRegistry(RegistryConfig{
		Resolver:        loader,
		ModuleExtension: e.moduleExt,
		Logger:          e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	e.registry = registry
	e.events = NewEventBus("watchreload/engine", e.logger)

	for _, p := range e.pendingObservers {
		if err := e.events.RegisterObserver(p.observer, p.eventTypes...); err != nil {
			return nil, fmt.Errorf("new engine: %w", err)
		}
	}
	e.pendingObservers = nil
	return e, nil
}

// Registry returns the module registry owned by the engine.
func (e *Engine) Registry() *Registry { return e.registry }

// Status returns the current pipeline state.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Pending returns the number of queued requests.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Length()
}

// Register records a module the loader just defined and returns the Hot
// its factory declares acceptance on.
func (e *Engine) Register(spec ModuleSpec) (*Hot, error) {
	hot, err := e.registry.Register(spec)
	if err != nil {
		return nil, err
	}
	e.events.Emit(context.Background(), EventTypeModuleRegistered, map[string]interface{}{
		"id":   spec.ID,
		"deps": spec.DependencyIDs,
	})
	return hot, nil
}

// SyncModules returns what is loaded, or nil when nothing is.
func (e *Engine) SyncModules() *SyncSnapshot {
	return e.registry.Sync()
}

// UpdateModule applies one change notification. When another update is in
// flight the request is queued and UpdateModule returns nil immediately; the
// in-flight caller drains the queue before the engine becomes idle again.
//
// Abort-class errors (see IsAbort) of the request itself are returned. Aborts
// of drained requests go to the AbortHandler.
func (e *Engine) UpdateModule(ctx context.Context, req UpdateRequest) error {
	e.mu.Lock()
	if e.status == StatusApplying {
		e.pending.Add(req)
		queued := e.pending.Length()
		e.mu.Unlock()
		e.logger.Debug("Update queued", "path", req.Path, "pending", queued)
		e.events.Emit(ctx, EventTypeUpdateQueued, req)
		return nil
	}
	e.status = StatusApplying
	e.mu.Unlock()

	_, err := e.applyReported(ctx, req)
	e.drain(context.WithoutCancel(ctx))
	return err
}

// drain applies queued requests one by one and returns the engine to idle
// once the queue is empty. The status stays applying in between.
func (e *Engine) drain(ctx context.Context) {
	for {
		e.mu.Lock()
		if e.pending.Length() == 0 {
			e.status = StatusIdle
			e.mu.Unlock()
			return
		}
		req := e.pending.Remove().(UpdateRequest)
		e.mu.Unlock()

		if _, err := e.applyReported(ctx, req); err != nil && e.onAbort != nil {
			e.onAbort(ctx, req, err)
		}
	}
}

// AddModule applies added modules in order.
func (e *Engine) AddModule(ctx context.Context, reqs ...UpdateRequest) error {
	var errs []error
	for _, req := range reqs {
		if err := e.UpdateModule(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveModule applies removals of the given paths in order.
func (e *Engine) RemoveModule(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := e.UpdateModule(ctx, UpdateRequest{Path: p, Removed: true}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncModule applies the server's view of the loaded modules. Entries whose
// fingerprint did not change are no-ops.
func (e *Engine) SyncModule(ctx context.Context, reqs []UpdateRequest) error {
	return e.AddModule(ctx, reqs...)
}

func (e *Engine) applyReported(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	start := time.Now()
	result, err := e.apply(ctx, req)
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		e.logger.Warn("Hot update aborted", "path", req.Path, "updateID", result.UpdateID, "error", err)
		e.events.Emit(ctx, EventTypeUpdateAborted, result)
		return result, err
	}
	if result.Noop {
		e.logger.Debug("Module unchanged, update ignored", "path", req.Path)
		e.events.Emit(ctx, EventTypeUpdateNoop, result)
		return result, nil
	}
	e.logger.Info("Hot update applied", "path", req.Path, "module", result.ModuleID, "outdated", result.Outdated, "duration", result.Duration)
	e.events.Emit(ctx, EventTypeUpdateCompleted, result)
	return result, nil
}

func (e *Engine) apply(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	result := &UpdateResult{UpdateID: uuid.NewString(), Request: req}
	e.events.Emit(ctx, EventTypeUpdateStarted, result)

	mod, ok := e.registry.LookupByPath(req.Path)
	if !ok {
		mod = placeholderModule(req.Path)
	}
	result.ModuleID = mod.ID

	if !req.Removed && req.Fingerprint != "" {
		if known, ok := e.registry.Fingerprint(req.Path); ok && known == req.Fingerprint {
			result.Noop = true
			return result, nil
		}
	}

	// Decline is a hard abort even for modules that also self-accept.
	if mod.selfDeclined() {
		return result, SelfDeclineAbortError{ID: mod.ID}
	}

	prop := newPropagation(e.registry)
	if mod.Initialized() && !mod.selfAccepted() {
		p, err := propagate(e.registry, mod)
		if err != nil {
			return result, err
		}
		prop = p
	}
	result.Outdated = prop.OutdatedIDs()
	for _, accepting := range prop.accepting {
		result.Accepting = append(result.Accepting, accepting.ID)
	}

	e.registry.Unregister(req.Path)
	oldHot := mod.Hot()
	if !mod.IsPlaceholder() {
		e.disposeModule(ctx, mod)
	}

	switch {
	case req.Removed:
		e.registry.SetFingerprint(req.Path, "")
	case mod.IsPlaceholder():
		// Never loaded: nothing to fetch.
		e.registry.SetFingerprint(req.Path, req.Fingerprint)
	default:
		if err := e.load(ctx, mod.ID); err != nil {
			loadErr := ModuleLoadError{ID: mod.ID, Err: err}
			result.LoadError = loadErr.Error()
			e.logger.Error("Module reload failed", "id", mod.ID, "path", req.Path, "error", err)
			e.events.Emit(ctx, EventTypeModuleLoadFailed, result)
			if oldHot != nil {
				e.notifySelfAccepted(mod.ID, oldHot, loadErr)
			}
		} else {
			e.registry.SetFingerprint(req.Path, req.Fingerprint)
			if oldHot != nil {
				e.notifySelfAccepted(mod.ID, oldHot, nil)
			}
		}
	}

	for _, outdated := range prop.outdated {
		e.redefine(ctx, outdated)
	}

	updated := prop.OutdatedIDs()
	if !mod.IsPlaceholder() {
		updated = append(updated, mod.ID)
	}
	e.dispatchAccepted(prop, mod, updated)
	return result, nil
}

// load calls the loader, turning panics into errors.
func (e *Engine) load(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	e.logger.Debug("require id", "id", id)
	return e.loader.Load(ctx, id)
}

// disposeModule runs the dispose handlers of the current incarnation and
// keeps their data for the next one.
func (e *Engine) disposeModule(ctx context.Context, mod *Module) {
	hot := mod.Hot()
	if hot == nil {
		return
	}
	data, disposed := hot.dispose(func(r any) {
		e.logger.Error("Dispose handler panicked", "id", mod.ID, "panic", r)
	})
	if !disposed {
		return
	}
	e.registry.carry(mod.ID, data)
	e.logger.Debug("dispose module", "id", mod.ID)
	e.events.Emit(ctx, EventTypeModuleDisposed, map[string]interface{}{"id": mod.ID})
}

// redefine re-executes an outdated module in place. Failures stay with the
// module: they are handed to its self-accept notifier or logged.
func (e *Engine) redefine(ctx context.Context, mod *Module) {
	oldHot := mod.Hot()
	e.disposeModule(ctx, mod)
	hot := e.registry.reincarnate(mod)

	e.logger.Debug("redefine module", "id", mod.ID)
	if err := e.invokeFactory(mod, hot); err != nil {
		redefineErr := ModuleRedefineError{ID: mod.ID, Err: err}
		if oldHot == nil || !e.notifySelfAccepted(mod.ID, oldHot, redefineErr) {
			e.logger.Error("Module redefine failed", "id", mod.ID, "error", err)
		}
		return
	}
	if oldHot != nil {
		e.notifySelfAccepted(mod.ID, oldHot, nil)
	}
	e.events.Emit(ctx, EventTypeModuleRedefined, map[string]interface{}{"id": mod.ID})
}

func (e *Engine) invokeFactory(mod *Module, hot *Hot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return mod.Definition().InvokeFactory(hot)
}

func (e *Engine) notifySelfAccepted(id string, hot *Hot, cause error) (notified bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Self-accept handler panicked", "id", id, "panic", r)
			notified = true
		}
	}()
	return hot.notifySelfAccepted(cause)
}

// dispatchAccepted fires, once each, the accept callbacks registered for a
// dependency that changed during this update.
func (e *Engine) dispatchAccepted(prop *propagation, changed *Module, updated []string) {
	candidates := make([]*Module, 0, len(prop.outdated)+len(prop.accepting)+1)
	candidates = append(candidates, prop.outdated...)
	candidates = append(candidates, prop.accepting...)
	if !changed.IsPlaceholder() {
		candidates = append(candidates, changed)
	}

	seen := make(map[*acceptEntry]struct{})
	visitedModules := make(map[string]struct{}, len(candidates))
	var callbacks []*acceptEntry
	for _, candidate := range candidates {
		if _, done := visitedModules[candidate.ID]; done {
			continue
		}
		visitedModules[candidate.ID] = struct{}{}

		deps := prop.triggers[candidate.ID]
		if len(deps) == 0 {
			continue
		}
		// The changed module may have been replaced by a new incarnation.
		current := candidate
		if live, ok := e.registry.Lookup(candidate.ID); ok {
			current = live
		}
		hot := current.Hot()
		if hot == nil {
			continue
		}
		for _, dep := range deps {
			entry := hot.acceptEntry(dep)
			if entry == nil || entry.callback == nil {
				continue
			}
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			callbacks = append(callbacks, entry)
		}
	}

	for _, entry := range callbacks {
		e.runAccept(entry, updated)
	}
}

func (e *Engine) runAccept(entry *acceptEntry, updated []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Accept handler panicked", "updated", updated, "panic", r)
		}
	}()
	entry.callback(append([]string(nil), updated...))
}

// RegisterObserver implements Subject by delegating to the engine event bus.
func (e *Engine) RegisterObserver(observer Observer, eventTypes ...string) error {
	return e.events.RegisterObserver(observer, eventTypes...)
}

// UnregisterObserver implements Subject.
func (e *Engine) UnregisterObserver(observer Observer) error {
	return e.events.UnregisterObserver(observer)
}

// NotifyObservers implements Subject.
func (e *Engine) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	return e.events.NotifyObservers(ctx, event)
}

// GetObservers implements Subject.
func (e *Engine) GetObservers() []ObserverInfo {
	return e.events.GetObservers()
}
