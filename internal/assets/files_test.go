package assets

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "abc.main.js"), []byte("plain"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "abc.main.js.gz"), []byte("gzipped"), 0o644))

	h := FileServer(dir, func(name string) bool { return strings.HasPrefix(name, "/js/") })

	tests := []struct {
		name     string
		accept   string
		body     string
		encoding string
	}{
		{name: "identity", body: "plain"},
		{name: "gzip", accept: "gzip, deflate", body: "gzipped", encoding: "gzip"},
		{name: "zstd without sidecar", accept: "zstd", body: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/js/abc.main.js", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			res := rec.Result()
			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, res.StatusCode)
			require.Equal(t, tt.body, string(body))
			require.Equal(t, tt.encoding, res.Header.Get("Content-Encoding"))
			require.Equal(t, immutableCache, res.Header.Get("Cache-Control"))
		})
	}
}
