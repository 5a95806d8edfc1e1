package assets

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const immutableCache = "public, max-age=31536000, immutable"

// sidecars in preference order, matching the extensions the emit writer produces.
var sidecars = []struct {
	encoding string
	ext      string
}{
	{"zstd", ".zst"},
	{"gzip", ".gz"},
}

// FileServer serves the build output in dir. Precompressed sidecars are served
// when the client accepts them. Paths for which immutable reports true get a
// long lived cache header.
func FileServer(dir string, immutable func(name string) bool) http.Handler {
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if immutable != nil && immutable(name) {
			w.Header().Set("Cache-Control", immutableCache)
		}

		accept := r.Header.Get("Accept-Encoding")
		for _, sc := range sidecars {
			if !strings.Contains(accept, sc.encoding) {
				continue
			}
			full := filepath.Join(dir, filepath.FromSlash(name)+sc.ext)
			if _, err := os.Stat(full); err != nil {
				continue
			}
			w.Header().Add("Vary", "Accept-Encoding")
			w.Header().Set("Content-Encoding", sc.encoding)
			if ct := mimeFor(name); ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			http.ServeFile(w, r, full)
			return
		}

		files.ServeHTTP(w, r)
	})
}

func mimeFor(name string) string {
	switch path.Ext(name) {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".html":
		return "text/html; charset=utf-8"
	}
	return ""
}
