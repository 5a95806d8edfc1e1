// Package registry holds the isomorphic asset table mapping logical asset
// keys to final URLs. One build populates it, the manifest persists it and
// the serving process loads it back read only.
package registry

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry maps logical keys to final URLs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]string
	frozen  bool
}

// New creates an empty, writable registry.
func New() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Register records key to path. Registering the same pair again is a no-op; a
// different path for an existing key is a *DuplicateKeyError.
func (r *Registry) Register(key, path string) error {
	if key == "" {
		return fmt.Errorf("registry key must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if existing, ok := r.entries[key]; ok {
		if existing == path {
			return nil
		}
		return &DuplicateKeyError{Key: key, Existing: existing, Attempted: path}
	}
	r.entries[key] = path
	return nil
}

// Lookup returns the path registered for key.
func (r *Registry) Lookup(key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return p, nil
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Snapshot returns a copy of the table.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.entries)
}

// Freeze makes the registry read only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the registry rejects writes.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Persist serialises the registry as an indented JSON object with sorted
// keys and a trailing newline.
func (r *Registry) Persist() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// encoding/json sorts map keys
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Load parses a persisted manifest into a frozen registry.
func Load(data []byte) (*Registry, error) {
	entries := make(map[string]string)

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ManifestError{Cause: err}
	}
	for k := range entries {
		if k == "" {
			return nil, &ManifestError{Cause: fmt.Errorf("empty key")}
		}
	}

	return &Registry{entries: entries, frozen: true}, nil
}
