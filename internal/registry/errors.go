package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Lookup for unknown keys.
	ErrNotFound = errors.New("asset not registered")
	// ErrFrozen is returned when registering into a loaded registry.
	ErrFrozen = errors.New("registry is read only")
	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("registry already initialized")
	// ErrNotInitialized is returned by the package level Lookup before Init.
	ErrNotInitialized = errors.New("registry not initialized")
)

// DuplicateKeyError reports a key registered twice with different paths,
// which means two builds disagree on where an asset lives.
type DuplicateKeyError struct {
	Key       string
	Existing  string
	Attempted string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate registry key %q: registered as %q, attempted %q", e.Key, e.Existing, e.Attempted)
}

// ManifestError reports a manifest that could not be parsed.
type ManifestError struct {
	Path  string
	Cause error
}

func (e *ManifestError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("invalid manifest: %v", e.Cause)
}

func (e *ManifestError) Unwrap() error {
	return e.Cause
}
