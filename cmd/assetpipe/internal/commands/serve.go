package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/registry"
)

type ServeCmd struct {
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"ASSETPIPE_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"ASSETPIPE_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"ASSETPIPE_TLS_KEY"`

	Dir          string        `help:"build output directory to serve" default:"build" env:"ASSETPIPE_DIR"`
	Manifest     string        `help:"path to the manifest" default:"build/manifest.json" env:"ASSETPIPE_MANIFEST"`
	ManifestWait time.Duration `help:"how long to wait for the manifest to be written" default:"30s" env:"ASSETPIPE_MANIFEST_WAIT"`
	Immutable    []string      `help:"URL prefixes served with a long lived cache header" default:"/js/,/css/" env:"ASSETPIPE_IMMUTABLE"`

	// Page rendering
	Templates string `help:"directory of html templates rendered against the manifest" default:"" env:"ASSETPIPE_TEMPLATES"`
	Index     string `help:"template rendered for /" default:"index.html"`
	Title     string `help:"page title passed to the index template" default:""`

	Telemetry TelemetryFlags `embed:""`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	defer c.Telemetry.setupTelemetry(ctx, log, "assetpipe-server", globals.Version)()

	reg, err := assets.WaitForManifest(ctx, c.Manifest, c.ManifestWait)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := registry.Init(reg); err != nil {
		return err
	}
	defer registry.Teardown()

	log.Info().Str("manifest", c.Manifest).Int("entries", reg.Len()).Msg("Loaded manifest")

	mux := http.NewServeMux()

	if c.Templates != "" {
		renderer, err := assets.NewWithTemplateDir(reg, c.Templates, nil)
		if err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}
		mux.Handle("GET /{$}", renderer.Handler(c.Index, c.Title, nil))
	}

	// Serve static assets
	mux.Handle("/", assets.FileServer(c.Dir, c.immutable))

	srv := configureHTTPServer(c.Listen, logger.RequestLogger(log)(mux))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown server")
		}
	}()

	log.Info().Str("addr", c.Listen).Str("dir", c.Dir).Msg("Listening")

	if c.Cert != "" {
		err = srv.ListenAndServeTLS(c.Cert, c.Key)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (c *ServeCmd) immutable(name string) bool {
	for _, prefix := range c.Immutable {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
