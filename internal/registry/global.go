package registry

import "sync"

var (
	globalMu sync.RWMutex
	global   *Registry
)

// Init installs r as the process-wide registry. It is called once at process
// start, usually with the result of ReadFile.
func Init(r *Registry) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return ErrAlreadyInitialized
	}
	global = r
	return nil
}

// Default returns the process-wide registry, or nil before Init.
func Default() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Lookup resolves key against the process-wide registry.
func Lookup(key string) (string, error) {
	r := Default()
	if r == nil {
		return "", ErrNotInitialized
	}
	return r.Lookup(key)
}

// Teardown clears the process-wide registry so Init can run again. Used at
// shutdown and between tests.
func Teardown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}
