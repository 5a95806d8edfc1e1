package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// TelemetryFlags enables OTLP export of build metrics and traces.
type TelemetryFlags struct {
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"ASSETPIPE_TRACING"`
	SampleRatio float64 `help:"fraction of builds traced" default:"1" env:"ASSETPIPE_TRACE_SAMPLE_RATIO"`
}

// setupTelemetry initialises telemetry when enabled. The returned func is
// always safe to defer.
func (f TelemetryFlags) setupTelemetry(ctx context.Context, log zerolog.Logger, service, version string) func() {
	if !f.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: service,
		Version:     version,
		SampleRatio: f.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
