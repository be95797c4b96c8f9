package watchreload

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
)

// PathResolver turns a module id into the URL the loader fetches it from.
type PathResolver interface {
	ResolveURL(id string) string
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func(id string) string

// ResolveURL implements PathResolver.
func (f PathResolverFunc) ResolveURL(id string) string { return f(id) }

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Resolver maps ids to URLs. Required.
	Resolver PathResolver
	// ModuleExtension is appended to module paths (not plugin resources).
	// Default: ".js"
	ModuleExtension string
	// Logger receives debug output for id/path resolution.
	Logger Logger
}

// SyncSnapshot lists everything currently loaded, modules and resources apart.
type SyncSnapshot struct {
	Modules   []string `json:"modules"`
	Resources []string `json:"resources"`
}

// Registry is the set of currently loaded modules together with the
// memoized id<->path mapping. Paths are the keys the update server uses.
type Registry struct {
	resolver  PathResolver
	moduleExt string
	logger    Logger

	mu           sync.RWMutex
	modules      map[string]*Module // key is module id
	order        []string
	idToPath     map[string]string
	pathToID     map[string]string
	carried      map[string]HotData // key is module id
	fingerprints map[string]string  // key is path
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Resolver == nil {
		return nil, ErrResolverNil
	}
	if config.ModuleExtension == "" {
		config.ModuleExtension = ".js"
	}
	return &Registry{
		resolver:     config.Resolver,
		moduleExt:    config.ModuleExtension,
		logger:       orNop(config.Logger),
		modules:      make(map[string]*Module),
		idToPath:     make(map[string]string),
		pathToID:     make(map[string]string),
		carried:      make(map[string]HotData),
		fingerprints: make(map[string]string),
	}, nil
}

// Register records a live module and returns the Hot of its new incarnation.
// The Hot carries whatever the previous incarnation of the same id stored
// while being disposed.
func (r *Registry) Register(spec ModuleSpec) (*Hot, error) {
	if spec.ID == "" {
		return nil, ErrModuleIDEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mod := &Module{
		ID:            spec.ID,
		DependencyIDs: append([]string(nil), spec.DependencyIDs...),
		ResourceIDs:   append([]string(nil), spec.ResourceIDs...),
		definition:    spec.Definition,
	}

	ref := parseResource(spec.ID)
	if ref.resource != "" {
		mod.Plugin = ref.module
		mod.Path = r.pathOf(spec.ID, ref.resource, true)
	} else {
		mod.Path = r.pathOf(spec.ID, spec.ID, false)
	}

	if owner, ok := r.pathToID[mod.Path]; ok && owner != spec.ID {
		if _, live := r.modules[owner]; live {
			return nil, fmt.Errorf("register %s: %w: %s is held by %s", spec.ID, ErrPathConflict, mod.Path, owner)
		}
	}
	r.pathToID[mod.Path] = spec.ID

	for _, dep := range mod.DependencyIDs {
		mod.depPaths = append(mod.depPaths, r.pathOf(dep, dep, false))
	}
	for _, res := range mod.ResourceIDs {
		depRef := parseResource(res)
		if depRef.resource != "" {
			mod.depPaths = append(mod.depPaths, r.pathOf(res, depRef.resource, true))
			continue
		}
		mod.depPaths = append(mod.depPaths, path.Join(path.Dir(mod.Path), res))
	}

	hot := newHot(spec.ID, r.carried[spec.ID])
	delete(r.carried, spec.ID)
	mod.hot = hot

	if _, exists := r.modules[spec.ID]; !exists {
		r.order = append(r.order, spec.ID)
	}
	r.modules[spec.ID] = mod

	r.logger.Debug("Module registered", "id", spec.ID, "path", mod.Path, "deps", mod.DependencyIDs)
	return hot, nil
}

// pathOf resolves and memoizes the path of key. Caller holds r.mu.
func (r *Registry) pathOf(key, resolveID string, pluginResource bool) string {
	if p, ok := r.idToPath[key]; ok {
		return p
	}

	raw := r.resolver.ResolveURL(resolveID)
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = strings.TrimPrefix(p, "/")
	if !pluginResource {
		p += r.moduleExt
	}

	r.idToPath[key] = p
	if _, taken := r.pathToID[p]; !taken {
		r.pathToID[p] = key
	}
	r.logger.Debug("init id to path", "id", key, "path", p)
	return p
}

// PathOf returns the path of an id, resolving it if it was never seen.
func (r *Registry) PathOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := parseResource(id)
	if ref.resource != "" {
		return r.pathOf(id, ref.resource, true)
	}
	return r.pathOf(id, id, false)
}

// LookupByPath resolves a path to the live module holding it.
func (r *Registry) LookupByPath(p string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pathToID[p]
	if !ok {
		return nil, false
	}
	mod, ok := r.modules[id]
	return mod, ok
}

// Lookup returns the live module with the given id.
func (r *Registry) Lookup(id string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[id]
	return mod, ok
}

// Unregister removes the module living at path. The memoized id<->path
// mapping is kept since it is deterministic.
func (r *Registry) Unregister(p string) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.pathToID[p]
	if !ok {
		return nil, false
	}
	mod, ok := r.modules[id]
	if !ok {
		return nil, false
	}
	delete(r.modules, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debug("Module unregistered", "id", id, "path", p)
	return mod, true
}

// FindDependents returns the distinct modules that directly depend on path,
// in registration order.
func (r *Registry) FindDependents(p string) []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var parents []*Module
	for _, id := range r.order {
		mod := r.modules[id]
		if mod.Path == p {
			continue
		}
		if mod.dependsOn(p) {
			parents = append(parents, mod)
		}
	}
	return parents
}

// Modules returns the live modules in registration order.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id])
	}
	return out
}

// Len returns the number of live modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Sync returns the snapshot sent to the server once a connection is
// established, or nil when nothing is loaded.
func (r *Registry) Sync() *SyncSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil
	}
	snapshot := &SyncSnapshot{Modules: []string{}, Resources: []string{}}
	for _, id := range r.order {
		mod := r.modules[id]
		if mod.IsResource() {
			snapshot.Resources = append(snapshot.Resources, mod.Path)
			continue
		}
		snapshot.Modules = append(snapshot.Modules, mod.Path)
	}
	return snapshot
}

// Fingerprint returns the last applied content fingerprint of path.
func (r *Registry) Fingerprint(p string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fp, ok := r.fingerprints[p]
	return fp, ok
}

// SetFingerprint records the content fingerprint of path. An empty
// fingerprint forgets it.
func (r *Registry) SetFingerprint(p, fingerprint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fingerprint == "" {
		delete(r.fingerprints, p)
		return
	}
	r.fingerprints[p] = fingerprint
}

// carry stores the dispose bag of id for its next incarnation.
func (r *Registry) carry(id string, data HotData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carried[id] = data
}

// reincarnate gives a module redefined in place a fresh Hot seeded with
// the data carried from its previous incarnation.
func (r *Registry) reincarnate(mod *Module) *Hot {
	r.mu.Lock()
	data := r.carried[mod.ID]
	delete(r.carried, mod.ID)
	r.mu.Unlock()

	hot := newHot(mod.ID, data)
	mod.swapHot(hot)
	return hot
}
