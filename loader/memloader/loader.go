// Package memloader is a module loader whose modules are Go factories held
// in memory. It backs the headless client and exercises the engine the way
// a browser module loader would: dependencies load first, every module
// registers with the engine before its factory runs, and redefining a source
// simulates new code arriving from the server.
package memloader

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/GoCodeAlone/watchreload"
)

// Factory builds the exports of a module from the exports of its
// dependencies, in DependencyIDs order.
type Factory func(hot *watchreload.Hot, deps []any) (any, error)

// Source is the code of one module. Plugin resources ("plugin!resource")
// have no factory.
type Source struct {
	ID            string
	DependencyIDs []string
	ResourceIDs   []string
	Factory       Factory
}

// Registrar records loaded modules. *watchreload.Engine implements it.
type Registrar interface {
	Register(spec watchreload.ModuleSpec) (*watchreload.Hot, error)
}

// Loader implements watchreload.Loader on top of a catalog of Sources.
type Loader struct {
	base   *url.URL
	logger watchreload.Logger
	group  singleflight.Group

	mu          sync.RWMutex
	registrar   Registrar
	sources     map[string]Source
	definitions map[string]*definition
	loads       map[string]int
}

// New creates a loader resolving ids against base, e.g. "/" or
// "http://localhost:8080/static/".
func New(base string, logger watchreload.Logger) (*Loader, error) {
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBase, err)
	}
	if logger == nil {
		logger = watchreload.NopLogger{}
	}
	return &Loader{
		base:        u,
		logger:      logger,
		sources:     make(map[string]Source),
		definitions: make(map[string]*definition),
		loads:       make(map[string]int),
	}, nil
}

// Bind sets the registrar modules report to. The engine is created with the
// loader, so binding happens afterwards.
func (l *Loader) Bind(registrar Registrar) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registrar = registrar
}

// Define adds or replaces the source of a module. Replacing does not touch
// the running module until it is loaded again.
func (l *Loader) Define(sources ...Source) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, source := range sources {
		if source.ID == "" {
			return ErrSourceIDEmpty
		}
		l.sources[source.ID] = source
	}
	return nil
}

// ResolveURL implements watchreload.PathResolver.
func (l *Loader) ResolveURL(id string) string {
	return l.base.ResolveReference(&url.URL{Path: id}).String()
}

// Load implements watchreload.Loader. It executes id again even when it was
// loaded before; missing dependencies are loaded first. Concurrent loads of
// the same id share one execution.
func (l *Loader) Load(ctx context.Context, id string) error {
	_, err, shared := l.group.Do(id, func() (interface{}, error) {
		return nil, l.load(ctx, id, map[string]bool{}, true)
	})
	if shared {
		l.logger.Debug("load shared", "id", id)
	}
	return err
}

func (l *Loader) load(ctx context.Context, id string, visiting map[string]bool, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if visiting[id] {
		return nil
	}
	visiting[id] = true

	l.mu.RLock()
	registrar := l.registrar
	source, ok := l.sources[id]
	_, loaded := l.definitions[id]
	l.mu.RUnlock()

	if registrar == nil {
		return ErrNotBound
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	if loaded && !force {
		return nil
	}

	for _, dep := range source.DependencyIDs {
		if err := l.load(ctx, dep, visiting, false); err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
	}
	for _, res := range source.ResourceIDs {
		if !strings.Contains(res, "!") {
			continue
		}
		if err := l.load(ctx, res, visiting, false); err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
	}

	var def *definition
	spec := watchreload.ModuleSpec{
		ID:            id,
		DependencyIDs: source.DependencyIDs,
		ResourceIDs:   source.ResourceIDs,
	}
	if source.Factory != nil {
		def = &definition{loader: l, id: id, deps: source.DependencyIDs, factory: source.Factory}
		spec.Definition = def
	}

	hot, err := registrar.Register(spec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.definitions[id] = def
	l.loads[id]++
	l.mu.Unlock()
	l.logger.Debug("module loaded", "id", id)

	if def == nil {
		return nil
	}
	return def.InvokeFactory(hot)
}

// Exports returns what the factory of id last produced.
func (l *Loader) Exports(id string) (any, bool) {
	l.mu.RLock()
	def, ok := l.definitions[id]
	l.mu.RUnlock()
	if !ok || def == nil {
		return nil, false
	}
	return def.Exports()
}

// LoadCount returns how often id was executed by the loader.
func (l *Loader) LoadCount(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loads[id]
}

func (l *Loader) dependencyExports(ids []string) []any {
	exports := make([]any, len(ids))
	for i, id := range ids {
		exports[i], _ = l.Exports(id)
	}
	return exports
}
