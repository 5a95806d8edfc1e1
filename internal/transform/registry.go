package transform

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/wolfeidau/assetpipe/internal/rules"
)

// Kind describes one step implementation and the options it recognises.
type Kind struct {
	Name    string
	Options []string
	Run     StepFunc
}

// Registry maps step names to their implementations.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Register adds a step kind. Registering the same name twice is an error.
func (r *Registry) Register(k Kind) error {
	if k.Name == "" || k.Run == nil {
		return fmt.Errorf("step kind requires a name and a run function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[k.Name]; exists {
		return fmt.Errorf("step kind %q already registered", k.Name)
	}
	r.kinds[k.Name] = k
	return nil
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// Names returns the registered step names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateStep implements rules.StepValidator.
func (r *Registry) ValidateStep(step rules.Step) error {
	k, ok := r.Lookup(step.Name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownStep, step.Name)
	}
	for key := range step.Options {
		if !slices.Contains(k.Options, key) {
			return fmt.Errorf("unrecognised option %q (known: %v)", key, k.Options)
		}
	}
	return nil
}
