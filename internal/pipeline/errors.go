package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/registry"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

var (
	// ErrInvalidTransition indicates a lifecycle bug, not a build failure.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBuildInProgress is returned when Build is called while another build runs.
	ErrBuildInProgress = errors.New("build already in progress")
)

// BuildError is the single report of a failed build. It names the state the
// build failed in and, when known, the module, rule and step responsible.
// Cause keeps the full error chain for errors.Is and errors.As.
type BuildError struct {
	BuildID string
	Variant string
	State   State
	Module  string
	Rule    string
	Step    string
	Cause   error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "build %s", e.BuildID)
	if e.Variant != "" {
		fmt.Fprintf(&b, " (%s)", e.Variant)
	}
	fmt.Fprintf(&b, " failed while %s: %v", e.State, e.Cause)
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// newBuildError fills in module, rule and step from the typed errors the
// lower layers return.
func newBuildError(buildID, variant string, state State, err error) *BuildError {
	be := &BuildError{BuildID: buildID, Variant: variant, State: state, Cause: err}

	var te *transform.TransformError
	var me *moduleError
	var ce *naming.NamingCollisionError
	var de *registry.DuplicateKeyError
	switch {
	case errors.As(err, &te):
		be.Module, be.Rule, be.Step = te.Module, te.Rule, te.Step
	case errors.As(err, &me):
		be.Module = me.Module
	case errors.As(err, &ce):
		be.Module = ce.Path
	case errors.As(err, &de):
		be.Module = de.Key
	}
	return be
}

// moduleError attributes a failure outside the transform chain to a module.
type moduleError struct {
	Module string
	Cause  error
}

func (e *moduleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Cause)
}

func (e *moduleError) Unwrap() error {
	return e.Cause
}
