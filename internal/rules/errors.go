package rules

import "fmt"

// RuleConfigError reports a malformed or ambiguous rule found while loading
// configuration. It is fatal and raised before any module is discovered.
type RuleConfigError struct {
	Rule   string
	Index  int
	Reason string
	Cause  error
}

func (e *RuleConfigError) Error() string {
	name := e.Rule
	if name == "" {
		name = fmt.Sprintf("#%d", e.Index)
	}
	if e.Cause != nil {
		return fmt.Sprintf("rule %s: %s: %v", name, e.Reason, e.Cause)
	}
	return fmt.Sprintf("rule %s: %s", name, e.Reason)
}

func (e *RuleConfigError) Unwrap() error {
	return e.Cause
}

// OptionError indicates a step option had the wrong type.
type OptionError struct {
	Key  string
	Want string
	Got  any
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("option %q: expected %s, got %T", e.Key, e.Want, e.Got)
}
