// Package emit writes named artifacts into the output directory, optionally
// with precompressed gzip and zstd sidecars for static file servers.
package emit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/assetpipe/internal/naming"
)

// Encodings and the sidecar extension they produce.
const (
	Gzip = "gzip"
	Zstd = "zstd"
)

var sidecarExt = map[string]string{
	Gzip: ".gz",
	Zstd: ".zst",
}

var compressibleExt = []string{".js", ".mjs", ".css", ".svg", ".json", ".html", ".txt", ".map", ".xml"}

// ErrUnsafePath is returned for artifact paths escaping the output directory.
var ErrUnsafePath = errors.New("artifact path escapes output directory")

// Options configure a Writer.
type Options struct {
	Encodings []string
	// MinBytes is the smallest artifact that gets sidecars.
	MinBytes int
}

// Result describes one written artifact.
type Result struct {
	Path     string
	Bytes    int
	Sidecars []string
	// Unchanged is set when the file already held identical content.
	Unchanged bool
}

// Writer writes artifacts below Dir.
type Writer struct {
	dir  string
	opts Options
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, opts Options) (*Writer, error) {
	for _, enc := range opts.Encodings {
		if _, ok := sidecarExt[enc]; !ok {
			return nil, fmt.Errorf("unknown encoding %q", enc)
		}
	}
	return &Writer{dir: dir, opts: opts}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores art at its final path. Content-addressed files that already
// exist with the same bytes are left alone.
func (w *Writer) Write(ctx context.Context, art naming.Artifact) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	target, err := w.resolve(art.Path)
	if err != nil {
		return Result{}, err
	}

	res := Result{Path: target, Bytes: len(art.Content)}

	existing, err := os.ReadFile(target)
	switch {
	case err == nil && bytes.Equal(existing, art.Content):
		res.Unchanged = true
	case err == nil || errors.Is(err, os.ErrNotExist):
		if err := writeAtomic(target, art.Content); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("failed to read existing artifact: %w", err)
	}

	written := make(map[string]bool, len(sidecarExt))
	if w.compressible(art) {
		for _, enc := range w.opts.Encodings {
			sidecar := target + sidecarExt[enc]
			if res.Unchanged {
				if _, err := os.Stat(sidecar); err == nil {
					res.Sidecars = append(res.Sidecars, sidecar)
					written[sidecar] = true
					continue
				}
			}

			compressed, err := compress(enc, art.Content)
			if err != nil {
				return Result{}, fmt.Errorf("failed to %s %s: %w", enc, art.Path, err)
			}
			if len(compressed) >= len(art.Content) {
				continue
			}
			if err := writeAtomic(sidecar, compressed); err != nil {
				return Result{}, err
			}
			res.Sidecars = append(res.Sidecars, sidecar)
			written[sidecar] = true

			zerolog.Ctx(ctx).Debug().
				Str("path", art.Path).
				Str("encoding", enc).
				Int("original_bytes", len(art.Content)).
				Int("compressed_bytes", len(compressed)).
				Msg("Wrote precompressed sidecar")
		}
	}

	// a rewritten target must not keep sidecars of its previous content
	if !res.Unchanged {
		if err := removeStale(target, written); err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

func removeStale(target string, written map[string]bool) error {
	for _, ext := range sidecarExt {
		sidecar := target + ext
		if written[sidecar] {
			continue
		}
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale sidecar: %w", err)
		}
	}
	return nil
}

// Clean removes everything in the output directory except the paths in keep,
// which are absolute or relative to the working directory.
func (w *Writer) Clean(keep ...string) error {
	entries, err := os.ReadDir(w.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		abs, err := filepath.Abs(k)
		if err != nil {
			return err
		}
		kept[abs] = true
	}

	return w.cleanDir(w.dir, entries, kept)
}

func (w *Writer) cleanDir(dir string, entries []os.DirEntry, kept map[string]bool) error {
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if kept[abs] {
			continue
		}
		if e.IsDir() && containsKept(abs, kept) {
			children, err := os.ReadDir(p)
			if err != nil {
				return err
			}
			if err := w.cleanDir(p, children, kept); err != nil {
				return err
			}
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

func containsKept(dir string, kept map[string]bool) bool {
	prefix := dir + string(filepath.Separator)
	for k := range kept {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func (w *Writer) resolve(artifactPath string) (string, error) {
	clean := path.Clean("/" + artifactPath)
	if clean == "/" || path.IsAbs(artifactPath) || slices.Contains(strings.Split(artifactPath, "/"), "..") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, artifactPath)
	}
	return filepath.Join(w.dir, filepath.FromSlash(clean[1:])), nil
}

func (w *Writer) compressible(art naming.Artifact) bool {
	if len(w.opts.Encodings) == 0 || len(art.Content) < w.opts.MinBytes {
		return false
	}
	return slices.Contains(compressibleExt, strings.ToLower(path.Ext(art.Path)))
}

func compress(encoding string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	var enc io.WriteCloser
	var err error

	switch encoding {
	case Gzip:
		enc, err = gzip.NewWriterLevel(&buf, gzip.BestCompression)
	case Zstd:
		enc, err = zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	default:
		err = fmt.Errorf("unknown encoding %q", encoding)
	}
	if err != nil {
		return nil, err
	}

	if _, err := enc.Write(content); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data to a temp file next to target and renames it into place.
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".emit-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", target, err)
	}
	return nil
}
