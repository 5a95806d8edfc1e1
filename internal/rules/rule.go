package rules

import "strconv"

// Options holds the per-step configuration map as decoded from the rule file.
type Options map[string]any

// Step names a transform kind and its configuration.
type Step struct {
	Name    string  `yaml:"name"`
	Options Options `yaml:"options"`

	// SideOutput diverts the step result to the extraction bundle named by
	// Bundle instead of passing it down the chain.
	SideOutput bool   `yaml:"sideOutput"`
	Bundle     string `yaml:"bundle"`
}

// Rule binds a path test to an ordered transform chain.
type Rule struct {
	Name    string
	Test    Predicate
	Include PathPrefixes
	Exclude PathPrefixes
	Steps   []Step

	// Emit publishes the module's inline result as its own artifact.
	Emit bool
	// Filename overrides the build's output filename template for emitted modules.
	Filename string
}

// Applies reports whether the rule accepts modulePath.
func (r *Rule) Applies(modulePath string) bool {
	if r.Test == nil || !r.Test.Matches(modulePath) {
		return false
	}
	if len(r.Include) > 0 && !r.Include.Contains(modulePath) {
		return false
	}
	if len(r.Exclude) > 0 && r.Exclude.Contains(modulePath) {
		return false
	}
	return true
}

// String returns the option as a string, or def when missing.
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", &OptionError{Key: key, Want: "string", Got: v}
	}
}

// Int returns the option as an int, or def when missing.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == float64(int(t)) {
			return int(t), nil
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, nil
		}
	}
	return 0, &OptionError{Key: key, Want: "int", Got: v}
}

// Bool returns the option as a bool, or def when missing.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, &OptionError{Key: key, Want: "bool", Got: v}
}

// StringMap returns a nested map of strings, e.g. define replacements.
func (o Options) StringMap(key string) (map[string]string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]string:
		for k, s := range t {
			out[k] = s
		}
	case map[string]any:
		for k, raw := range t {
			s, ok := raw.(string)
			if !ok {
				return nil, &OptionError{Key: key + "." + k, Want: "string", Got: raw}
			}
			out[k] = s
		}
	default:
		return nil, &OptionError{Key: key, Want: "map", Got: v}
	}
	return out, nil
}
