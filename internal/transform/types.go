// Package transform runs a rule's ordered chain of transform steps over a module.
package transform

import (
	"context"
	"slices"
	"time"

	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/rules"
)

// Meta travels alongside content through the chain.
type Meta struct {
	// Ext overrides the module extension for output naming, e.g. ".js" after transpiling ".jsx".
	Ext      string
	MimeType string

	// URL is the value a module exports when it stands for an asset: a public
	// path for emitted files or a data URI when the asset was inlined.
	URL     string
	Inlined bool

	// Files lists artifacts a loader emitted itself (file and url loaders).
	Files []naming.Artifact
}

func (m Meta) clone() Meta {
	m.Files = slices.Clone(m.Files)
	return m
}

// Input is what a step receives: the module identity plus the previous step's output.
type Input struct {
	ModuleID string
	Content  []byte
	Meta     Meta
}

// Output is what a step produces.
type Output struct {
	Content []byte
	Meta    Meta
}

// StepFunc is a transform over (content, options). Implementations must not
// rely on state outside their arguments so modules can run in parallel.
type StepFunc func(ctx context.Context, in Input, opts rules.Options) (Output, error)

// SideOutput is content diverted to an extraction bundle.
type SideOutput struct {
	ModuleID string
	Bundle   string
	Step     string
	Content  []byte
}

// ResultKind tags a StepResult.
type ResultKind int

const (
	// Inline replaces the chain content with the step output.
	Inline ResultKind = iota
	// Forked keeps the pre-step content inline and diverts the step output.
	Forked
)

func (k ResultKind) String() string {
	if k == Forked {
		return "forked"
	}
	return "inline"
}

// StepResult is the outcome of one step: either an inline replacement or a
// fork carrying both the untouched inline value and the side output.
type StepResult struct {
	Kind   ResultKind
	Inline Output
	Side   *SideOutput
}

func inlineResult(out Output) StepResult {
	return StepResult{Kind: Inline, Inline: out}
}

func forkedResult(pre Output, side SideOutput) StepResult {
	return StepResult{Kind: Forked, Inline: pre, Side: &side}
}

// StepTiming records how long a step took.
type StepTiming struct {
	Name     string
	Duration time.Duration
}

// Result is the outcome of running a whole chain over one module.
type Result struct {
	ModuleID    string
	Rule        string
	Content     []byte
	Meta        Meta
	SideOutputs []SideOutput
	Timings     []StepTiming
}

// Passthrough reports whether no rule applied to the module.
func (r Result) Passthrough() bool {
	return r.Rule == ""
}
