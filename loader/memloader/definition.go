package memloader

import (
	"sync"

	"github.com/GoCodeAlone/watchreload"
)

// definition is the live object of one loaded module.
type definition struct {
	loader  *Loader
	id      string
	deps    []string
	factory Factory

	mu          sync.RWMutex
	exports     any
	initialized bool
	calls       int
}

// InvokeFactory implements watchreload.Definition. The factory sees the
// current exports of the dependencies, so a redefined module picks up the
// new code of whatever changed below it.
func (d *definition) InvokeFactory(hot *watchreload.Hot) error {
	deps := d.loader.dependencyExports(d.deps)

	d.mu.Lock()
	d.calls++
	d.initialized = true
	d.mu.Unlock()

	exports, err := d.factory(hot, deps)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.exports = exports
	d.mu.Unlock()
	return nil
}

// Initialized implements watchreload.Definition.
func (d *definition) Initialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// Exports returns the last exports and whether the factory produced any.
func (d *definition) Exports() (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.exports, d.initialized
}

// Calls returns how often the factory ran.
func (d *definition) Calls() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.calls
}
