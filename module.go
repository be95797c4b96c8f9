package watchreload

import (
	"strings"
	"sync"
)

// Definition is the loader's live module object. The engine never looks
// inside it: it only asks whether the factory already ran and re-invokes
// the factory when the module is outdated.
type Definition interface {
	// InvokeFactory executes the module factory in place against the
	// currently loaded dependencies. hot is the capability of the new
	// incarnation.
	InvokeFactory(hot *Hot) error

	// Initialized reports whether the factory has executed at least once.
	Initialized() bool
}

// ModuleSpec is the metadata a loader reports when a module registers.
type ModuleSpec struct {
	// ID is the loader's module id. Plugin resources use "plugin!resource".
	ID string
	// DependencyIDs are the module ids required at load time, in order.
	DependencyIDs []string
	// ResourceIDs are non-module references. Either a full "plugin!resource"
	// id or a path relative to the module.
	ResourceIDs []string
	// Definition is the handle used to re-invoke the factory. It may be nil
	// for plugin resources.
	Definition Definition
}

// Module is one loaded module as tracked by the Registry.
type Module struct {
	ID            string
	Path          string
	Plugin        string
	DependencyIDs []string
	ResourceIDs   []string

	definition Definition
	depPaths   []string

	mu  sync.RWMutex
	hot *Hot
}

// placeholderModule stands in for a path no loaded module resolves to.
func placeholderModule(path string) *Module {
	return &Module{Path: path}
}

// IsPlaceholder reports whether the module is a stand-in for an unknown path.
func (m *Module) IsPlaceholder() bool { return m.ID == "" }

// IsResource reports whether the module is a plugin resource.
func (m *Module) IsResource() bool { return m.Plugin != "" }

// Initialized reports whether the module's factory has executed.
func (m *Module) Initialized() bool {
	if m.definition == nil {
		return false
	}
	return m.definition.Initialized()
}

// Definition returns the loader handle.
func (m *Module) Definition() Definition { return m.definition }

// Hot returns the capability of the current incarnation. Placeholders have none.
func (m *Module) Hot() *Hot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hot
}

// DependencyPaths returns the resolved paths of module and resource dependencies.
func (m *Module) DependencyPaths() []string {
	return append([]string(nil), m.depPaths...)
}

func (m *Module) dependsOn(path string) bool {
	for _, p := range m.depPaths {
		if p == path {
			return true
		}
	}
	return false
}

func (m *Module) selfDeclined() bool {
	hot := m.Hot()
	return hot != nil && hot.SelfDeclined()
}

func (m *Module) selfAccepted() bool {
	hot := m.Hot()
	return hot != nil && hot.SelfAccepted()
}

func (m *Module) declines(dep string) bool {
	hot := m.Hot()
	return hot != nil && hot.Declines(dep)
}

func (m *Module) accepts(dep string) bool {
	hot := m.Hot()
	return hot != nil && hot.Accepts(dep)
}

func (m *Module) swapHot(hot *Hot) *Hot {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.hot
	m.hot = hot
	return old
}

// resourceRef splits "plugin!resource" ids.
type resourceRef struct {
	module   string
	resource string
}

func parseResource(id string) resourceRef {
	index := strings.IndexByte(id, '!')
	if index == -1 {
		return resourceRef{module: id}
	}
	return resourceRef{module: id[:index], resource: id[index+1:]}
}
