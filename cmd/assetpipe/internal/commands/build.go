package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/discover"
	"github.com/wolfeidau/assetpipe/internal/emit"
	"github.com/wolfeidau/assetpipe/internal/extract"
	"github.com/wolfeidau/assetpipe/internal/loaders"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/pipeline"
	"github.com/wolfeidau/assetpipe/internal/registry"
	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
	"github.com/wolfeidau/assetpipe/internal/watch"
)

type BuildCmd struct {
	Config   string        `help:"path to the build config file" default:"assetpipe.yaml" env:"ASSETPIPE_CONFIG"`
	Variant  []string      `help:"variants to build, all configured variants when empty" env:"ASSETPIPE_VARIANTS"`
	Watch    bool          `help:"rebuild when source files change" default:"false" env:"ASSETPIPE_WATCH"`
	Debounce time.Duration `help:"quiet period after the last change before rebuilding" default:"200ms" env:"ASSETPIPE_DEBOUNCE"`

	Telemetry TelemetryFlags `embed:""`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting build")

	cfg, err := loadConfig(log, c.Config)
	if err != nil {
		return err
	}

	variants, err := selectVariants(cfg, c.Variant)
	if err != nil {
		return err
	}

	defer c.Telemetry.setupTelemetry(ctx, log, "assetpipe", globals.Version)()

	err = runBuild(ctx, cfg, variants)
	if !c.Watch {
		return err
	}
	if err != nil {
		log.Error().Err(err).Msg("Initial build failed, waiting for changes")
	}

	var ignore []string
	for _, v := range variants {
		ignore = append(ignore, cfg.OutputDir(v))
	}
	w, err := watch.New(cfg.Source, c.Debounce, func(ctx context.Context) error {
		return runBuild(ctx, cfg, variants)
	}, ignore...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	return w.Run(ctx)
}

// loadConfig reads path, falling back to the defaults when it does not exist.
func loadConfig(log zerolog.Logger, path string) (config.BuildConfig, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("config", path).Msg("Config file not found, using defaults")
		cfg = config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return config.BuildConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Warn().Str("config", path).Msg(w)
	}
	return cfg, nil
}

// selectVariants returns the named variants in configuration order, or all
// of them when names is empty.
func selectVariants(cfg config.BuildConfig, names []string) ([]config.VariantConfig, error) {
	if len(names) == 0 {
		return cfg.Variants, nil
	}
	var out []config.VariantConfig
	for _, v := range cfg.Variants {
		for _, n := range names {
			if v.Name == n {
				out = append(out, v)
			}
		}
	}
	for _, n := range names {
		if _, ok := cfg.Variant(n); !ok {
			return nil, fmt.Errorf("unknown variant %q", n)
		}
	}
	return out, nil
}

// runBuild builds every variant in order. The variants share one fresh
// registry so the manifest written by the last of them holds every entry.
// An output directory is cleaned only by the first variant writing to it, so
// a later variant never removes files an earlier one already registered.
func runBuild(ctx context.Context, cfg config.BuildConfig, variants []config.VariantConfig) error {
	log := zerolog.Ctx(ctx)
	reg := registry.New()
	cleaned := make(map[string]bool)

	for _, v := range variants {
		outDir := filepath.Clean(cfg.OutputDir(v))
		clean := cfg.Clean && !cleaned[outDir]
		cleaned[outDir] = true

		p, err := newPipeline(cfg, v, reg, clean)
		if err != nil {
			return fmt.Errorf("variant %s: %w", v.Name, err)
		}

		res, err := p.Build(ctx)
		if err != nil {
			return err
		}

		var bytes int
		for _, a := range res.Artifacts {
			bytes += a.Size
		}
		log.Info().
			Str("build_id", res.ID).
			Str("variant", res.Variant).
			Int("modules", res.Modules).
			Int("artifacts", len(res.Artifacts)).
			Int("bytes", bytes).
			Dur("duration", res.Duration).
			Msg("Variant built")
	}

	log.Info().Str("manifest", cfg.Manifest).Int("entries", reg.Len()).Msg("Manifest written")
	return nil
}

// newPipeline wires the collaborators of one variant build. With clean set the
// output directory is emptied when the build starts.
func newPipeline(cfg config.BuildConfig, v config.VariantConfig, reg *registry.Registry, clean bool) (*pipeline.Pipeline, error) {
	namer, err := naming.New(cfg.Hash)
	if err != nil {
		return nil, err
	}

	steps := transform.NewRegistry()
	err = loaders.Register(steps, loaders.Env{
		Namer:      namer,
		PublicPath: cfg.Output.PublicPath,
		Define:     cfg.DefineFor(v),
		Minify:     cfg.MinifyFor(v),
	})
	if err != nil {
		return nil, err
	}

	compiled, err := rules.Compile(cfg.Rules, steps)
	if err != nil {
		return nil, err
	}

	outDir := cfg.OutputDir(v)
	writer, err := emit.NewWriter(outDir, emit.Options{
		Encodings: cfg.Precompress.Encodings,
		MinBytes:  cfg.Precompress.MinBytes,
	})
	if err != nil {
		return nil, err
	}

	var listeners []pipeline.Listener
	if clean {
		listeners = append(listeners, pipeline.CleanListener(writer))
	}

	return pipeline.New(pipeline.Config{
		Variant: v.Name,
		Discoverer: &discover.Walker{
			Root:    cfg.Source,
			Exclude: nestedOutput(cfg.Source, outDir),
		},
		Matcher:  rules.NewMatcher(compiled),
		Executor: transform.NewExecutor(steps),
		Namer:    namer,
		Emitter:  writer,
		Registry: reg,
		Extract: extract.Options{
			Filename:    cfg.Extract.Filename,
			IgnoreOrder: cfg.Extract.IgnoreOrder,
			Kind:        naming.KindStyle,
		},
		Filename:    cfg.Output.Filename,
		Passthrough: cfg.Output.Passthrough,
		PublicPath:  cfg.Output.PublicPath,
		OutputDir:   outDir,
		Manifest:    cfg.Manifest,
		Workers:     cfg.Workers,
		Register:    v.Registers,
		Listeners:   listeners,
	})
}

// nestedOutput returns the discovery exclusion for an output directory that
// lives below the source root.
func nestedOutput(source, outDir string) []string {
	rel, err := filepath.Rel(source, outDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return []string{filepath.ToSlash(rel) + "/"}
}
