package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/assetpipe/internal/naming"
)

// Event names the state transition a listener is invoked at.
type Event int

const (
	// OnDiscoverStart runs on Idle -> Discovering, before any module is read.
	OnDiscoverStart Event = iota
	// OnTransformComplete runs once every module has been transformed.
	OnTransformComplete
	// OnEmitComplete runs on entering Done, after the manifest is persisted.
	OnEmitComplete
	// OnFailed runs on entering Failed.
	OnFailed
)

func (e Event) String() string {
	switch e {
	case OnDiscoverStart:
		return "discover_start"
	case OnTransformComplete:
		return "transform_complete"
	case OnEmitComplete:
		return "emit_complete"
	case OnFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ArtifactInfo describes an emitted artifact without its content.
type ArtifactInfo struct {
	Key  string
	Kind naming.Kind
	Path string
	URL  string
	Hash string
	Size int
}

// BuildInfo is the read-only view of a build handed to listeners.
type BuildInfo struct {
	ID        string
	Variant   string
	State     State
	Started   time.Time
	OutputDir string
	Manifest  string
	Modules   int
	Artifacts []ArtifactInfo
	// Err is set for OnFailed.
	Err error
}

// ListenerFunc is invoked with a snapshot of the build. An error returned at
// OnDiscoverStart or OnTransformComplete fails the build; errors at
// OnEmitComplete and OnFailed are logged.
type ListenerFunc func(ctx context.Context, info BuildInfo) error

// Listener binds a callback to an event.
type Listener struct {
	Name string
	On   Event
	Fn   ListenerFunc
}

// notify runs the listeners registered for ev in registration order and
// stops at the first error.
func notify(ctx context.Context, listeners []Listener, ev Event, info BuildInfo) error {
	for _, l := range listeners {
		if l.On != ev {
			continue
		}
		snapshot := info
		snapshot.Artifacts = slices.Clone(info.Artifacts)

		zerolog.Ctx(ctx).Debug().Str("listener", l.Name).Str("event", ev.String()).Msg("Running listener")
		if err := l.Fn(ctx, snapshot); err != nil {
			return fmt.Errorf("listener %s at %s: %w", l.Name, ev, err)
		}
	}
	return nil
}

// Cleaner empties an output directory except for the paths listed.
type Cleaner interface {
	Clean(keep ...string) error
}

// CleanListener empties the output directory when a build starts. The
// manifest is kept so a failed build leaves the last good one in place.
func CleanListener(c Cleaner) Listener {
	return Listener{
		Name: "clean",
		On:   OnDiscoverStart,
		Fn: func(ctx context.Context, info BuildInfo) error {
			zerolog.Ctx(ctx).Info().Str("dir", info.OutputDir).Msg("Cleaning output directory")
			if info.Manifest == "" {
				return c.Clean()
			}
			return c.Clean(info.Manifest)
		},
	}
}
