package rules

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DefaultBundle is the extraction bundle used when a side-output step names none.
const DefaultBundle = "main"

// TestConfig is the declarative form of a rule test. Exactly one field must be set.
type TestConfig struct {
	Extensions []string `yaml:"extensions"`
	Pattern    string   `yaml:"pattern"`
}

// RuleConfig is the declarative form of a rule as read from the build file.
type RuleConfig struct {
	Name     string     `yaml:"name"`
	Test     TestConfig `yaml:"test"`
	Include  []string   `yaml:"include"`
	Exclude  []string   `yaml:"exclude"`
	Emit     bool       `yaml:"emit"`
	Filename string     `yaml:"filename"`
	Steps    []Step     `yaml:"steps"`
}

// StepValidator checks a step against the set of known transform kinds and
// their recognised options.
type StepValidator interface {
	ValidateStep(step Step) error
}

// Compile validates rule configurations and builds the rule list in
// declaration order. The first problem found is returned as a *RuleConfigError.
func Compile(configs []RuleConfig, validator StepValidator) ([]*Rule, error) {
	out := make([]*Rule, 0, len(configs))
	names := make(map[string]int, len(configs))

	for i, cfg := range configs {
		name := cfg.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		if prev, dup := names[name]; dup {
			return nil, &RuleConfigError{Rule: name, Index: i, Reason: fmt.Sprintf("duplicate rule name (first declared at #%d)", prev)}
		}
		names[name] = i

		test, err := compileTest(cfg.Test)
		if err != nil {
			return nil, &RuleConfigError{Rule: name, Index: i, Reason: "invalid test", Cause: err}
		}

		if len(cfg.Steps) == 0 {
			return nil, &RuleConfigError{Rule: name, Index: i, Reason: "no steps declared"}
		}

		steps := make([]Step, len(cfg.Steps))
		for j, step := range cfg.Steps {
			if step.Name == "" {
				return nil, &RuleConfigError{Rule: name, Index: i, Reason: fmt.Sprintf("step %d has no name", j)}
			}
			if step.SideOutput && step.Bundle == "" {
				step.Bundle = DefaultBundle
			}
			if step.Options == nil {
				step.Options = Options{}
			}
			if validator != nil {
				if err := validator.ValidateStep(step); err != nil {
					return nil, &RuleConfigError{Rule: name, Index: i, Reason: fmt.Sprintf("step %q", step.Name), Cause: err}
				}
			}
			steps[j] = step
		}

		rule := &Rule{
			Name:     name,
			Test:     test,
			Include:  PathPrefixes(cfg.Include),
			Exclude:  PathPrefixes(cfg.Exclude),
			Steps:    steps,
			Emit:     cfg.Emit,
			Filename: cfg.Filename,
		}

		if shadow := shadowedBy(out, rule); shadow != nil {
			return nil, &RuleConfigError{Rule: name, Index: i, Reason: fmt.Sprintf("unreachable, shadowed by rule %q with the same test and no filters", shadow.Name)}
		}

		out = append(out, rule)
		log.Debug().
			Str("rule", name).
			Str("test", test.String()).
			Int("steps", len(steps)).
			Bool("emit", cfg.Emit).
			Msg("Compiled rule")
	}

	return out, nil
}

func compileTest(cfg TestConfig) (Predicate, error) {
	hasExt := len(cfg.Extensions) > 0
	hasPattern := cfg.Pattern != ""

	switch {
	case hasExt && hasPattern:
		return nil, errors.New("extensions and pattern are mutually exclusive")
	case hasExt:
		exts := NewExtensions(cfg.Extensions...)
		if len(exts) == 0 {
			return nil, errors.New("extension set is empty")
		}
		return exts, nil
	case hasPattern:
		return NewPattern(cfg.Pattern)
	default:
		return nil, errors.New("test requires extensions or pattern")
	}
}

// shadowedBy finds an earlier rule that accepts every path the candidate would.
func shadowedBy(earlier []*Rule, candidate *Rule) *Rule {
	for _, r := range earlier {
		if len(r.Include) == 0 && len(r.Exclude) == 0 && r.Test.String() == candidate.Test.String() {
			return r
		}
	}
	return nil
}
