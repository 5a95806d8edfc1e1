package transform

import (
	"context"
	"time"

	"github.com/wolfeidau/assetpipe/internal/rules"
)

// Executor runs rule chains using the step kinds of a Registry.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an Executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Run executes rule.Steps in order over in. A nil rule is the identity
// transform. The first failing step aborts the chain with a *TransformError.
func (e *Executor) Run(ctx context.Context, in Input, rule *rules.Rule) (Result, error) {
	result := Result{ModuleID: in.ModuleID}
	current := Output{Content: in.Content, Meta: in.Meta.clone()}

	if rule == nil {
		result.Content = current.Content
		result.Meta = current.Meta
		return result, nil
	}
	result.Rule = rule.Name

	for _, step := range rule.Steps {
		if err := ctx.Err(); err != nil {
			return Result{}, &TransformError{Step: step.Name, Module: in.ModuleID, Rule: rule.Name, Cause: err}
		}

		started := time.Now()
		sr, err := e.runStep(ctx, in.ModuleID, step, current)
		if err != nil {
			return Result{}, &TransformError{Step: step.Name, Module: in.ModuleID, Rule: rule.Name, Cause: err}
		}
		result.Timings = append(result.Timings, StepTiming{Name: step.Name, Duration: time.Since(started)})

		if sr.Side != nil {
			result.SideOutputs = append(result.SideOutputs, *sr.Side)
		}
		current = sr.Inline
	}

	result.Content = current.Content
	result.Meta = current.Meta
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, moduleID string, step rules.Step, current Output) (StepResult, error) {
	kind, ok := e.registry.Lookup(step.Name)
	if !ok {
		return StepResult{}, ErrUnknownStep
	}

	out, err := kind.Run(ctx, Input{ModuleID: moduleID, Content: current.Content, Meta: current.Meta.clone()}, step.Options)
	if err != nil {
		return StepResult{}, err
	}

	if step.SideOutput {
		return forkedResult(current, SideOutput{
			ModuleID: moduleID,
			Bundle:   step.Bundle,
			Step:     step.Name,
			Content:  out.Content,
		}), nil
	}
	return inlineResult(out), nil
}
