package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a backend instance.
type Factory func(opts Options) Backend

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend available under name. It is meant to be called
// from init() of the backend's package:
//
//	func init() {
//		backend.Register("raster", func(o backend.Options) backend.Backend { return New(o) })
//	}
//
// Register panics if factory is nil or name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	factories[name] = factory
}

// Unregister removes a backend from the registry. It is a no-op for names
// that are not registered.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// New creates a backend by name.
func New(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("backend: unknown backend %q (forgotten import?)", name)
	}
	return factory(opts), nil
}

// Must is like New but panics on error.
func Must(name string, opts Options) Backend {
	b, err := New(name, opts)
	if err != nil {
		panic(err)
	}
	return b
}

// Names returns the registered backend names in alphabetical order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}
