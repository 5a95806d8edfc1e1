// Package pipeline orchestrates a build: discovery, parallel transformation,
// extraction, naming and emission, with the manifest persisted last.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/assetpipe/internal/emit"
	"github.com/wolfeidau/assetpipe/internal/extract"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/registry"
	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

const (
	// DefaultFilename names emitted script modules.
	DefaultFilename = "js/[chunkhash].[name].js"
	// DefaultPassthrough names modules no rule matched.
	DefaultPassthrough = "[path][name].[ext]"
)

// Emitter durably writes artifacts.
type Emitter interface {
	Write(ctx context.Context, art naming.Artifact) (emit.Result, error)
}

// Config wires the collaborators of a Pipeline.
type Config struct {
	Variant    string
	Discoverer Discoverer
	Matcher    *rules.Matcher
	Executor   *transform.Executor
	Namer      *naming.Namer
	Emitter    Emitter
	Registry   *registry.Registry
	Extract    extract.Options

	Filename    string
	Passthrough string
	PublicPath  string
	// OutputDir is reported to listeners.
	OutputDir string
	// Manifest is where the registry is persisted. Empty skips persisting.
	Manifest string
	Workers  int
	// Register filters the artifact kinds published to the registry. Nil
	// publishes everything.
	Register  func(naming.Kind) bool
	Listeners []Listener
}

// PhaseTiming records how long the build spent in a state.
type PhaseTiming struct {
	State    State
	Duration time.Duration
}

// BuildResult summarises a successful build.
type BuildResult struct {
	ID        string
	Variant   string
	Modules   int
	Artifacts []ArtifactInfo
	Manifest  string
	Phases    []PhaseTiming
	Duration  time.Duration
}

// Pipeline runs builds. Builds on one Pipeline are serialised.
type Pipeline struct {
	cfg     Config
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	running atomic.Bool

	mu    sync.Mutex
	state State
}

// New validates cfg and returns a Pipeline in the Idle state.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Discoverer == nil:
		return nil, errors.New("pipeline requires a discoverer")
	case cfg.Matcher == nil:
		return nil, errors.New("pipeline requires a matcher")
	case cfg.Executor == nil:
		return nil, errors.New("pipeline requires an executor")
	case cfg.Namer == nil:
		return nil, errors.New("pipeline requires a namer")
	case cfg.Emitter == nil:
		return nil, errors.New("pipeline requires an emitter")
	case cfg.Registry == nil:
		return nil, errors.New("pipeline requires a registry")
	}

	if cfg.Filename == "" {
		cfg.Filename = DefaultFilename
	}
	if cfg.Passthrough == "" {
		cfg.Passthrough = DefaultPassthrough
	}
	if cfg.Extract.Filename == "" {
		cfg.Extract.Filename = extract.DefaultFilename
	}
	for _, tmpl := range []string{cfg.Filename, cfg.Passthrough, cfg.Extract.Filename} {
		if err := naming.ValidateTemplate(tmpl); err != nil {
			return nil, err
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	cfg.Listeners = slices.Clone(cfg.Listeners)

	return &Pipeline{
		cfg:     cfg,
		metrics: telemetry.GetMetrics(),
		tracer:  telemetry.Tracer(),
	}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(next State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return transition(&p.state, next)
}

// Build runs one build to completion. On failure the returned error is a
// *BuildError, artifacts already written stay in place and the manifest is
// not touched.
func (p *Pipeline) Build(ctx context.Context) (*BuildResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer p.running.Store(false)

	if p.State().IsTerminal() {
		if err := p.setState(Idle); err != nil {
			return nil, err
		}
	}

	b := &build{
		p:       p,
		id:      uuid.NewString(),
		started: time.Now(),
		agg:     extract.New(p.cfg.Extract),
	}
	ctx, b.log = logger.ForBuild(ctx, b.id, p.cfg.Variant)
	b.attrs = metric.WithAttributes(attribute.String("variant", p.cfg.Variant))

	ctx, span := p.tracer.Start(ctx, "build", trace.WithAttributes(
		attribute.String("build.id", b.id),
		attribute.String("build.variant", p.cfg.Variant),
	))
	defer span.End()

	p.metrics.BuildsTotal.Add(ctx, 1, b.attrs)
	p.cfg.Namer.Reset()

	res, err := b.run(ctx)
	p.metrics.BuildDuration.Record(ctx, float64(time.Since(b.started).Milliseconds()), b.attrs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// build holds the state of one run.
type build struct {
	p       *Pipeline
	id      string
	started time.Time
	log     zerolog.Logger
	attrs   metric.MeasurementOption

	phaseStart time.Time
	phaseSpan  trace.Span
	phases     []PhaseTiming

	modules []Module
	rules   []*rules.Rule
	results []transform.Result
	agg     *extract.Aggregator
	bundles []naming.Artifact

	artifacts []naming.Artifact
	entries   []entry
	emitted   []ArtifactInfo
}

// entry is a registry key and the URL it resolves to.
type entry struct {
	Key  string
	URL  string
	Kind naming.Kind
}

func (b *build) run(ctx context.Context) (*BuildResult, error) {
	cfg := b.p.cfg

	if err := b.enter(ctx, Discovering); err != nil {
		return nil, err
	}
	if err := notify(ctx, cfg.Listeners, OnDiscoverStart, b.info(Discovering)); err != nil {
		return nil, b.fail(ctx, err)
	}
	if err := b.discover(ctx); err != nil {
		return nil, b.fail(ctx, err)
	}

	if err := b.enter(ctx, Transforming); err != nil {
		return nil, err
	}
	if err := b.transform(ctx); err != nil {
		return nil, b.fail(ctx, err)
	}
	if err := notify(ctx, cfg.Listeners, OnTransformComplete, b.info(Transforming)); err != nil {
		return nil, b.fail(ctx, err)
	}

	if err := b.enter(ctx, Extracting); err != nil {
		return nil, err
	}
	if err := b.extract(ctx); err != nil {
		return nil, b.fail(ctx, err)
	}

	if err := b.enter(ctx, Naming); err != nil {
		return nil, err
	}
	if err := b.name(ctx); err != nil {
		return nil, b.fail(ctx, err)
	}

	if err := b.enter(ctx, Emitting); err != nil {
		return nil, err
	}
	if err := b.emit(ctx); err != nil {
		return nil, b.fail(ctx, err)
	}

	if err := b.enter(ctx, Done); err != nil {
		return nil, err
	}

	res := &BuildResult{
		ID:        b.id,
		Variant:   cfg.Variant,
		Modules:   len(b.modules),
		Artifacts: b.emitted,
		Manifest:  cfg.Manifest,
		Phases:    b.phases,
		Duration:  time.Since(b.started),
	}

	b.log.Info().
		Int("modules", res.Modules).
		Int("artifacts", len(res.Artifacts)).
		Dur("duration", res.Duration).
		Msg("Build complete")

	if err := notify(ctx, cfg.Listeners, OnEmitComplete, b.info(Done)); err != nil {
		b.log.Warn().Err(err).Msg("Post-build listener failed")
	}
	return res, nil
}

// enter closes the current phase and moves the pipeline to next.
func (b *build) enter(ctx context.Context, next State) error {
	now := time.Now()
	prev := b.p.State()

	if err := b.p.setState(next); err != nil {
		return err
	}

	if prev.active() {
		d := now.Sub(b.phaseStart)
		b.phases = append(b.phases, PhaseTiming{State: prev, Duration: d})
		b.p.metrics.PhaseDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
			attribute.String("variant", b.p.cfg.Variant),
			attribute.String("phase", prev.String()),
		))
		b.phaseSpan.End()
	}

	b.phaseStart = now
	if next.active() {
		_, b.phaseSpan = b.p.tracer.Start(ctx, "build."+next.String())
	}
	b.log.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("State transition")
	return nil
}

// fail moves the build to Failed, drops buffered side outputs and tells the
// OnFailed listeners.
func (b *build) fail(ctx context.Context, err error) error {
	state := b.p.State()
	be := newBuildError(b.id, b.p.cfg.Variant, state, err)

	if terr := b.enter(ctx, Failed); terr != nil {
		return errors.Join(be, terr)
	}
	b.agg.Discard()
	b.p.metrics.BuildFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant", b.p.cfg.Variant),
		attribute.String("phase", state.String()),
	))

	b.log.Error().
		Err(err).
		Str("state", state.String()).
		Str("module", be.Module).
		Str("rule", be.Rule).
		Str("step", be.Step).
		Msg("Build failed")

	info := b.info(Failed)
	info.Err = be
	if lerr := notify(context.WithoutCancel(ctx), b.p.cfg.Listeners, OnFailed, info); lerr != nil {
		b.log.Warn().Err(lerr).Msg("Failure listener failed")
	}
	return be
}

func (b *build) info(state State) BuildInfo {
	return BuildInfo{
		ID:        b.id,
		Variant:   b.p.cfg.Variant,
		State:     state,
		Started:   b.started,
		OutputDir: b.p.cfg.OutputDir,
		Manifest:  b.p.cfg.Manifest,
		Modules:   len(b.modules),
		Artifacts: b.emitted,
	}
}

func (b *build) discover(ctx context.Context) error {
	modules, err := b.p.cfg.Discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	seen := make(map[string]bool, len(modules))
	for _, m := range modules {
		if m.ID == "" {
			return errors.New("discovered module without an ID")
		}
		if seen[m.ID] {
			return &moduleError{Module: m.ID, Cause: errors.New("discovered twice")}
		}
		seen[m.ID] = true
	}

	b.modules = modules
	b.p.metrics.ModulesDiscovered.Add(ctx, int64(len(modules)), b.attrs)
	b.log.Info().Int("modules", len(modules)).Msg("Discovered modules")
	return nil
}

// transform runs every module's chain on a bounded worker pool. Results are
// stored by discovery index so completion order never leaks into output.
func (b *build) transform(ctx context.Context) error {
	cfg := b.p.cfg
	results := make([]transform.Result, len(b.modules))
	matched := make([]*rules.Rule, len(b.modules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i, m := range b.modules {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rule, _ := cfg.Matcher.Match(m.ID)
			in := transform.Input{
				ModuleID: m.ID,
				Content:  m.Content,
				Meta:     transform.Meta{Ext: path.Ext(m.ID), MimeType: m.ContentType},
			}

			res, err := cfg.Executor.Run(gctx, in, rule)
			if err != nil {
				return err
			}
			for _, st := range res.Timings {
				b.p.metrics.StepDuration.Record(gctx, float64(st.Duration.Microseconds())/1000, metric.WithAttributes(
					attribute.String("step", st.Name),
					attribute.String("rule", res.Rule),
				))
			}

			results[i] = res
			matched[i] = rule
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.results = results
	b.rules = matched
	b.p.metrics.ModulesTransformed.Add(ctx, int64(len(results)), b.attrs)
	return nil
}

// extract links asset URLs into referencing modules, then feeds side outputs
// to the aggregator in discovery order and finalizes every bundle.
func (b *build) extract(ctx context.Context) error {
	urls := make(map[string]string)
	for _, r := range b.results {
		if r.Meta.URL != "" {
			urls[r.ModuleID] = r.Meta.URL
		}
	}

	l := newLinker(urls)
	for i := range b.results {
		deps := b.modules[i].Dependencies
		if len(deps) == 0 || len(urls) == 0 {
			continue
		}
		b.results[i].Content = l.link(b.results[i].Content, deps)
		for j := range b.results[i].SideOutputs {
			so := &b.results[i].SideOutputs[j]
			so.Content = l.link(so.Content, deps)
		}
	}

	var fragments int64
	for i, r := range b.results {
		for _, so := range r.SideOutputs {
			b.agg.Collect(so.ModuleID, so.Bundle, i, so.Content)
			fragments++
		}
	}
	b.p.metrics.SideOutputsTotal.Add(ctx, fragments, b.attrs)

	for _, key := range b.agg.Keys() {
		art, err := b.agg.Finalize(key, b.p.cfg.Namer)
		if err != nil {
			return err
		}
		b.bundles = append(b.bundles, art)
	}
	return nil
}

// name resolves the final path of every artifact and registry entry, then
// claims the paths so different contents never share one.
func (b *build) name(ctx context.Context) error {
	cfg := b.p.cfg
	namer := cfg.Namer

	for i, r := range b.results {
		m := b.modules[i]
		rule := b.rules[i]

		if r.Meta.URL != "" {
			b.entries = append(b.entries, entry{Key: m.ID, URL: r.Meta.URL, Kind: naming.KindAsset})
		}
		b.artifacts = append(b.artifacts, r.Meta.Files...)

		var art naming.Artifact
		var err error
		switch {
		case rule == nil:
			art, err = namer.Artifact(m.ID, naming.KindPassthrough, cfg.Passthrough, r.Content, m.ID)
		case rule.Emit:
			tmpl := cmp.Or(rule.Filename, cfg.Filename)
			art, err = namer.Artifact(m.ID, kindOf(r.Meta), tmpl, r.Content, outputName(m.ID, r.Meta.Ext))
		default:
			continue
		}
		if err != nil {
			return &moduleError{Module: m.ID, Cause: err}
		}

		b.artifacts = append(b.artifacts, art)
		if r.Meta.URL == "" {
			b.entries = append(b.entries, entry{Key: m.ID, URL: naming.PublicURL(cfg.PublicPath, art.Path), Kind: art.Kind})
		}
	}

	for _, art := range b.bundles {
		b.artifacts = append(b.artifacts, art)
		b.entries = append(b.entries, entry{Key: art.Key, URL: naming.PublicURL(cfg.PublicPath, art.Path), Kind: art.Kind})
	}

	unique := b.artifacts[:0]
	seen := make(map[string]string, len(b.artifacts))
	for _, art := range b.artifacts {
		if err := namer.Claim(art.Path, art.Hash); err != nil {
			b.p.metrics.NamingCollisions.Add(ctx, 1, b.attrs)
			return &moduleError{Module: art.Key, Cause: err}
		}
		if hash, ok := seen[art.Path]; ok && hash == art.Hash {
			continue
		}
		seen[art.Path] = art.Hash
		unique = append(unique, art)
	}
	b.artifacts = unique

	slices.SortStableFunc(b.artifacts, func(x, y naming.Artifact) int { return cmp.Compare(x.Path, y.Path) })
	slices.SortStableFunc(b.entries, func(x, y entry) int { return cmp.Compare(x.Key, y.Key) })
	return nil
}

// emit writes every artifact, registers the entries and persists the
// manifest once everything else is on disk.
func (b *build) emit(ctx context.Context) error {
	cfg := b.p.cfg

	for _, art := range b.artifacts {
		res, err := cfg.Emitter.Write(ctx, art)
		if err != nil {
			return &moduleError{Module: art.Key, Cause: fmt.Errorf("failed to write %s: %w", art.Path, err)}
		}

		b.p.metrics.ArtifactsEmitted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("variant", cfg.Variant),
			attribute.String("kind", string(art.Kind)),
		))
		if !res.Unchanged {
			b.p.metrics.BytesEmitted.Add(ctx, int64(res.Bytes), b.attrs)
		}

		b.emitted = append(b.emitted, ArtifactInfo{
			Key:  art.Key,
			Kind: art.Kind,
			Path: art.Path,
			URL:  naming.PublicURL(cfg.PublicPath, art.Path),
			Hash: art.Hash,
			Size: len(art.Content),
		})
		zerolog.Ctx(ctx).Debug().Str("path", art.Path).Bool("unchanged", res.Unchanged).Msg("Wrote artifact")
	}

	for _, e := range b.entries {
		if cfg.Register != nil && !cfg.Register(e.Kind) {
			continue
		}
		if err := cfg.Registry.Register(e.Key, e.URL); err != nil {
			return err
		}
	}

	if cfg.Manifest == "" {
		return nil
	}
	if err := registry.WriteFile(cfg.Manifest, cfg.Registry); err != nil {
		return fmt.Errorf("failed to persist manifest: %w", err)
	}
	b.log.Info().Str("manifest", cfg.Manifest).Int("entries", cfg.Registry.Len()).Msg("Manifest persisted")
	return nil
}

// kindOf classifies an emitted module by its output extension.
func kindOf(meta transform.Meta) naming.Kind {
	switch meta.Ext {
	case ".js", ".mjs":
		return naming.KindScript
	case ".css":
		return naming.KindStyle
	default:
		return naming.KindAsset
	}
}

// outputName swaps the module extension for the one the chain produced, so
// button.jsx is named as button.js.
func outputName(moduleID, ext string) string {
	if ext == "" {
		return moduleID
	}
	return strings.TrimSuffix(moduleID, path.Ext(moduleID)) + ext
}
