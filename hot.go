package watchreload

import "sync"

// HotData is the mutable bag handed to dispose handlers. Whatever they store
// is visible through Hot.Data of the next incarnation of the same module id.
type HotData map[string]any

// AcceptFunc is notified with the ids of the changed and reloaded modules
// after a dependency it accepted was hot swapped.
type AcceptFunc func(updated []string)

// SelfAcceptFunc is notified after the module itself was swapped. err is
// non-nil when loading or re-executing the module failed.
type SelfAcceptFunc func(err error)

// DisposeFunc runs once, right before the module is torn down.
type DisposeFunc func(data HotData)

// HandlerID identifies a registered dispose handler.
type HandlerID uint64

type acceptEntry struct {
	callback AcceptFunc
}

type disposeEntry struct {
	id      HandlerID
	handler DisposeFunc
}

// Hot is the hot-update capability of one module incarnation: it records
// what the module accepts or declines and what must run when it is disposed.
// A Hot is built by the Registry when the module registers and is never
// attached afterwards.
type Hot struct {
	moduleID string

	mu                   sync.Mutex
	selfAccepted         bool
	selfAcceptNotifier   SelfAcceptFunc
	selfDeclined         bool
	acceptedDependencies map[string]*acceptEntry
	declinedDependencies map[string]struct{}
	disposeHandlers      []disposeEntry
	nextHandlerID        HandlerID
	active               bool
	data                 HotData
}

func newHot(moduleID string, carried HotData) *Hot {
	return &Hot{
		moduleID:             moduleID,
		acceptedDependencies: make(map[string]*acceptEntry),
		declinedDependencies: make(map[string]struct{}),
		active:               true,
		data:                 carried,
	}
}

// ModuleID returns the id of the owning module.
func (h *Hot) ModuleID() string { return h.moduleID }

// Accept marks the module as self-accepting: a change to it is absorbed
// without reloading the modules that depend on it.
func (h *Hot) Accept() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selfAccepted = true
}

// AcceptSelf marks the module as self-accepting with a post-swap notifier.
func (h *Hot) AcceptSelf(notify SelfAcceptFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selfAccepted = true
	h.selfAcceptNotifier = notify
}

// AcceptDeps registers cb for changes of the given dependency ids. A single
// call covering several dependencies is dispatched once per update.
func (h *Hot) AcceptDeps(cb AcceptFunc, deps ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry := &acceptEntry{callback: cb}
	for _, dep := range deps {
		if dep == "" {
			continue
		}
		h.acceptedDependencies[dep] = entry
	}
}

// Decline marks the module as self-declining: any change to it forces a
// full reload instead of a hot swap.
func (h *Hot) Decline() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selfDeclined = true
}

// DeclineDeps refuses hot updates that reach this module through deps.
func (h *Hot) DeclineDeps(deps ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, dep := range deps {
		if dep == "" {
			continue
		}
		h.declinedDependencies[dep] = struct{}{}
	}
}

// Dispose registers a dispose handler. It is an alias of AddDisposeHandler.
func (h *Hot) Dispose(handler DisposeFunc) HandlerID {
	return h.AddDisposeHandler(handler)
}

// AddDisposeHandler registers a handler invoked right before teardown.
// A nil handler is ignored and yields the zero HandlerID.
func (h *Hot) AddDisposeHandler(handler DisposeFunc) HandlerID {
	if handler == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextHandlerID++
	h.disposeHandlers = append(h.disposeHandlers, disposeEntry{id: h.nextHandlerID, handler: handler})
	return h.nextHandlerID
}

// RemoveDisposeHandler unregisters a handler added earlier.
func (h *Hot) RemoveDisposeHandler(id HandlerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, entry := range h.disposeHandlers {
		if entry.id == id {
			h.disposeHandlers = append(h.disposeHandlers[:i], h.disposeHandlers[i+1:]...)
			return
		}
	}
}

// Data returns what the previous incarnation stored while being disposed,
// or nil for a first incarnation.
func (h *Hot) Data() HotData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

// Active reports whether the incarnation is still live.
func (h *Hot) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// SelfAccepted reports whether the module declared self-acceptance.
func (h *Hot) SelfAccepted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selfAccepted
}

// SelfDeclined reports whether the module declared self-decline.
func (h *Hot) SelfDeclined() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selfDeclined
}

// Declines reports whether the module declined changes of dep.
func (h *Hot) Declines(dep string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.declinedDependencies[dep]
	return ok
}

// Accepts reports whether the module accepted changes of dep.
func (h *Hot) Accepts(dep string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.acceptedDependencies[dep]
	return ok
}

func (h *Hot) acceptEntry(dep string) *acceptEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acceptedDependencies[dep]
}

// notifySelfAccepted calls the self-accept notifier, if any. It reports
// whether a notifier was present.
func (h *Hot) notifySelfAccepted(err error) bool {
	h.mu.Lock()
	notify := h.selfAcceptNotifier
	h.mu.Unlock()
	if notify == nil {
		return false
	}
	notify(err)
	return true
}

// dispose runs the dispose handlers once and deactivates the incarnation.
// The returned bag is what the next incarnation will see. A second call is
// a no-op returning nil. A panicking handler is reported to onPanic and
// does not stop the remaining handlers.
func (h *Hot) dispose(onPanic func(any)) (HotData, bool) {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return nil, false
	}
	h.active = false
	handlers := h.disposeHandlers
	h.disposeHandlers = nil
	h.mu.Unlock()

	data := HotData{}
	for _, entry := range handlers {
		runDispose(entry.handler, data, onPanic)
	}
	return data, true
}

func runDispose(handler DisposeFunc, data HotData, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	handler(data)
}
