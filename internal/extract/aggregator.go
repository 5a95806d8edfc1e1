// Package extract aggregates side outputs diverted during transformation
// into one artifact per bundle key.
package extract

import (
	"bytes"
	"cmp"
	"errors"
	"path"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/naming"
)

// ErrEmptyBundle is returned when finalizing a bundle key nothing was collected for.
var ErrEmptyBundle = errors.New("no fragments collected for bundle")

const (
	// DefaultFilename names extracted style bundles.
	DefaultFilename = "css/[chunkhash].[name].css"
	separator       = "\n"
)

// Fragment is one module's contribution to a bundle.
type Fragment struct {
	ModuleID string
	// Order is the module's discovery index.
	Order   int
	Content []byte
}

// Options control how fragments are merged and named.
type Options struct {
	// Filename is the name template of aggregated bundles, e.g. css/[chunkhash].[name].css.
	Filename string
	// IgnoreOrder sorts fragments by module ID instead of discovery order so
	// the output does not depend on how modules were found.
	IgnoreOrder bool
	Kind        naming.Kind
}

// Aggregator buffers fragments per bundle key. Collect is safe for concurrent use.
type Aggregator struct {
	opts Options

	mu      sync.Mutex
	buckets map[string][]Fragment
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.Kind == "" {
		opts.Kind = naming.KindStyle
	}
	return &Aggregator{opts: opts, buckets: make(map[string][]Fragment)}
}

// Collect appends content for moduleID to bundleKey.
func (a *Aggregator) Collect(moduleID, bundleKey string, order int, content []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets[bundleKey] = append(a.buckets[bundleKey], Fragment{
		ModuleID: moduleID,
		Order:    order,
		Content:  bytes.Clone(content),
	})
}

// Keys returns the bundle keys collected so far, sorted.
func (a *Aggregator) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Finalize concatenates the fragments of bundleKey and names the result via
// namer with the bundle key as logical name. Calling it again without new
// Collect calls returns identical bytes and path.
func (a *Aggregator) Finalize(bundleKey string, namer *naming.Namer) (naming.Artifact, error) {
	a.mu.Lock()
	fragments := slices.Clone(a.buckets[bundleKey])
	a.mu.Unlock()

	if len(fragments) == 0 {
		return naming.Artifact{}, &BundleError{Bundle: bundleKey, Cause: ErrEmptyBundle}
	}

	slices.SortStableFunc(fragments, a.compare)

	parts := make([][]byte, len(fragments))
	for i, f := range fragments {
		parts[i] = f.Content
	}
	content := bytes.Join(parts, []byte(separator))

	art, err := namer.Artifact(a.Key(bundleKey), a.opts.Kind, a.opts.Filename, content, bundleKey)
	if err != nil {
		return naming.Artifact{}, &BundleError{Bundle: bundleKey, Cause: err}
	}

	log.Debug().
		Str("bundle", bundleKey).
		Str("path", art.Path).
		Int("fragments", len(fragments)).
		Int("bytes", len(content)).
		Bool("ignore_order", a.opts.IgnoreOrder).
		Msg("Finalized bundle")
	return art, nil
}

// Discard drops every buffered fragment, used when a build is abandoned.
func (a *Aggregator) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.buckets)
}

func (a *Aggregator) compare(x, y Fragment) int {
	if a.opts.IgnoreOrder {
		if c := cmp.Compare(x.ModuleID, y.ModuleID); c != 0 {
			return c
		}
	}
	return cmp.Compare(x.Order, y.Order)
}

// Key returns the registry key of an aggregated bundle: the bundle name plus
// the extension of the filename template, e.g. main.css.
func (a *Aggregator) Key(bundle string) string {
	return bundle + path.Ext(a.opts.Filename)
}
