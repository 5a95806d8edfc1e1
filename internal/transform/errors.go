package transform

import (
	"errors"
	"fmt"
)

// ErrUnknownStep indicates a rule references a step kind that is not registered.
var ErrUnknownStep = errors.New("unknown step kind")

// TransformError indicates a step failed on a specific module.
type TransformError struct {
	Step   string
	Module string
	Rule   string
	Cause  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("module %q, rule %q, step %q: %v", e.Module, e.Rule, e.Step, e.Cause)
}

func (e *TransformError) Unwrap() error {
	return e.Cause
}
