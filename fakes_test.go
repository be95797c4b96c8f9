package watchreload

import (
	"context"
	"fmt"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/require"
)

// testDefinition counts factory invocations.
type testDefinition struct {
	mu          sync.Mutex
	initialized bool
	calls       int
	factory     func(hot *Hot) error
}

func (d *testDefinition) InvokeFactory(hot *Hot) error {
	d.mu.Lock()
	d.calls++
	d.initialized = true
	factory := d.factory
	d.mu.Unlock()
	if factory == nil {
		return nil
	}
	return factory(hot)
}

func (d *testDefinition) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *testDefinition) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type testModuleSource struct {
	deps    []string
	factory func(hot *Hot) error
}

// testLoader plays the external module loader: it registers modules with
// the engine and runs their factories.
type testLoader struct {
	engine *Engine

	mu          sync.Mutex
	sources     map[string]testModuleSource
	definitions map[string]*testDefinition
	loads       []string
	failures    map[string]error
	gates       map[string]chan struct{}
	entered     chan string
}

func newTestLoader() *testLoader {
	return &testLoader{
		sources:     make(map[string]testModuleSource),
		definitions: make(map[string]*testDefinition),
		failures:    make(map[string]error),
		gates:       make(map[string]chan struct{}),
		entered:     make(chan string, 16),
	}
}

func (l *testLoader) ResolveURL(id string) string {
	return "http://localhost:8080/static/" + id
}

func (l *testLoader) Load(ctx context.Context, id string) error {
	l.mu.Lock()
	l.loads = append(l.loads, id)
	gate := l.gates[id]
	failure := l.failures[id]
	source, ok := l.sources[id]
	l.mu.Unlock()

	if gate != nil {
		l.entered <- id
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}
	if !ok {
		return fmt.Errorf("no source for %s", id)
	}

	def := &testDefinition{factory: source.factory}
	hot, err := l.engine.Register(ModuleSpec{ID: id, DependencyIDs: source.deps, Definition: def})
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.definitions[id] = def
	l.mu.Unlock()
	return def.InvokeFactory(hot)
}

func (l *testLoader) define(id string, deps []string, factory func(hot *Hot) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[id] = testModuleSource{deps: deps, factory: factory}
}

func (l *testLoader) fail(id string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[id] = err
}

func (l *testLoader) gate(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	gate := make(chan struct{})
	l.gates[id] = gate
	return gate
}

func (l *testLoader) definition(id string) *testDefinition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.definitions[id]
}

func (l *testLoader) Loads() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.loads...)
}

func (l *testLoader) resetLoads() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = nil
}

// newTestEngine returns an engine whose loader already loaded the given
// modules, in order.
func newTestEngine(t *testing.T, loader *testLoader, ids []string, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(loader, opts...)
	require.NoError(t, err)
	loader.engine = engine
	for _, id := range ids {
		require.NoError(t, loader.Load(context.Background(), id))
	}
	loader.resetLoads()
	return engine
}

// eventRecorder collects events delivered to it.
type eventRecorder struct {
	id string

	mu     sync.Mutex
	events []cloudevents.Event
}

func newEventRecorder(id string) *eventRecorder {
	return &eventRecorder{id: id}
}

func (r *eventRecorder) OnEvent(_ context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ObserverID() string { return r.id }

func (r *eventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type())
	}
	return types
}

func (r *eventRecorder) Count(eventType string) int {
	count := 0
	for _, seen := range r.Types() {
		if seen == eventType {
			count++
		}
	}
	return count
}

func (r *eventRecorder) Results(t *testing.T, eventType string) []UpdateResult {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []UpdateResult
	for _, event := range r.events {
		if event.Type() != eventType {
			continue
		}
		var result UpdateResult
		require.NoError(t, event.DataAs(&result))
		results = append(results, result)
	}
	return results
}
