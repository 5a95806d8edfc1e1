package emit

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/assetpipe/internal/naming"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, Options{})
	require.NoError(t, err)

	res, err := w.Write(context.Background(), naming.Artifact{Path: "js/abc.app.js", Content: []byte("console.log(1)")})
	require.NoError(t, err)
	require.False(t, res.Unchanged)
	require.Equal(t, filepath.Join(dir, "js", "abc.app.js"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, "console.log(1)", string(data))

	res, err = w.Write(context.Background(), naming.Artifact{Path: "js/abc.app.js", Content: []byte("console.log(1)")})
	require.NoError(t, err)
	require.True(t, res.Unchanged)

	entries, err := os.ReadDir(filepath.Join(dir, "js"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteOverwritesChangedContent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, Options{})
	require.NoError(t, err)

	_, err = w.Write(context.Background(), naming.Artifact{Path: "images/hero.png", Content: []byte("v1")})
	require.NoError(t, err)
	res, err := w.Write(context.Background(), naming.Artifact{Path: "images/hero.png", Content: []byte("v2")})
	require.NoError(t, err)
	require.False(t, res.Unchanged)

	data, err := os.ReadFile(filepath.Join(dir, "images", "hero.png"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestWriteDropsStaleSidecars(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, Options{Encodings: []string{Gzip, Zstd}, MinBytes: 64})
	require.NoError(t, err)

	tests := []struct {
		name    string
		content []byte
	}{
		{name: "incompressible", content: noise(4096)},
		{name: "below min bytes", content: []byte("User-agent: *\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := w.Write(context.Background(), naming.Artifact{Path: "robots.txt", Content: bytes.Repeat([]byte("a"), 4096)})
			require.NoError(t, err)
			require.Len(t, res.Sidecars, 2)

			res, err = w.Write(context.Background(), naming.Artifact{Path: "robots.txt", Content: tt.content})
			require.NoError(t, err)
			require.Empty(t, res.Sidecars)

			for _, ext := range []string{".gz", ".zst"} {
				_, err := os.Stat(filepath.Join(dir, "robots.txt"+ext))
				require.ErrorIs(t, err, os.ErrNotExist, ext)
			}
		})
	}
}

// noise returns deterministic bytes that do not compress.
func noise(n int) []byte {
	out := make([]byte, n)
	x := uint32(2463534242)
	for i := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x)
	}
	return out
}

func TestWriteRejectsUnsafePaths(t *testing.T) {
	w, err := NewWriter(t.TempDir(), Options{})
	require.NoError(t, err)

	for _, p := range []string{"../escape.js", "/etc/passwd", "a/../../b.js", ""} {
		_, err := w.Write(context.Background(), naming.Artifact{Path: p, Content: []byte("x")})
		require.ErrorIs(t, err, ErrUnsafePath, p)
	}
}

func TestWritePrecompresses(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, Options{Encodings: []string{Gzip, Zstd}, MinBytes: 64})
	require.NoError(t, err)

	content := []byte(strings.Repeat(".button { color: red; }\n", 100))
	res, err := w.Write(context.Background(), naming.Artifact{Path: "css/abc.main.css", Content: content})
	require.NoError(t, err)
	require.Len(t, res.Sidecars, 2)

	gz, err := os.Open(res.Path + ".gz")
	require.NoError(t, err)
	defer gz.Close()
	zr, err := gzip.NewReader(gz)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, content, got)

	raw, err := os.ReadFile(res.Path + ".zst")
	require.NoError(t, err)
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer dec.Close()
	got, err = io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, content, got)

	res, err = w.Write(context.Background(), naming.Artifact{Path: "css/abc.main.css", Content: content})
	require.NoError(t, err)
	require.True(t, res.Unchanged)
	require.Len(t, res.Sidecars, 2)
}

func TestWriteSkipsSmallAndBinary(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, Options{Encodings: []string{Gzip}, MinBytes: 64})
	require.NoError(t, err)

	res, err := w.Write(context.Background(), naming.Artifact{Path: "js/a.js", Content: []byte("1")})
	require.NoError(t, err)
	require.Empty(t, res.Sidecars)

	res, err = w.Write(context.Background(), naming.Artifact{Path: "images/a.png", Content: bytes.Repeat([]byte{0}, 4096)})
	require.NoError(t, err)
	require.Empty(t, res.Sidecars)
}

func TestNewWriterUnknownEncoding(t *testing.T) {
	_, err := NewWriter(t.TempDir(), Options{Encodings: []string{"br"}})
	require.Error(t, err)
}

func TestWriteCancelled(t *testing.T) {
	w, err := NewWriter(t.TempDir(), Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, naming.Artifact{Path: "a.js", Content: []byte("x")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "meta", "manifest.json")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "meta"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "js"), 0o755))
	require.NoError(t, os.WriteFile(manifest, []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "stale.json"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "old.js"), []byte("x"), 0o644))

	w, err := NewWriter(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Clean(manifest))

	_, err = os.Stat(manifest)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "meta", "stale.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "js"))
	require.ErrorIs(t, err, os.ErrNotExist)

	missing, err := NewWriter(filepath.Join(dir, "nope"), Options{})
	require.NoError(t, err)
	require.NoError(t, missing.Clean())
}
