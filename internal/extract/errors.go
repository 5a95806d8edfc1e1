package extract

import "fmt"

// BundleError reports a failure finalizing one bundle.
type BundleError struct {
	Bundle string
	Cause  error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle %q: %v", e.Bundle, e.Cause)
}

func (e *BundleError) Unwrap() error {
	return e.Cause
}
