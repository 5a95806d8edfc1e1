package loaders

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

func testEnv(t *testing.T) Env {
	t.Helper()
	namer, err := naming.New(naming.DefaultConfig())
	require.NoError(t, err)
	return Env{Namer: namer, PublicPath: "/static/"}
}

func testRegistry(t *testing.T, env Env) *transform.Registry {
	t.Helper()
	reg := transform.NewRegistry()
	require.NoError(t, Register(reg, env))
	return reg
}

func runStep(t *testing.T, reg *transform.Registry, name string, in transform.Input, opts rules.Options) (transform.Output, error) {
	t.Helper()
	kind, ok := reg.Lookup(name)
	require.True(t, ok, "step %s not registered", name)
	return kind.Run(context.Background(), in, opts)
}

func TestRegister(t *testing.T) {
	reg := testRegistry(t, testEnv(t))
	require.Equal(t, []string{"css", "define", "extract", "file", "image", "minify", "transpile", "url"}, reg.Names())

	require.Error(t, Register(reg, testEnv(t)), "registering twice should fail")

	require.NoError(t, reg.ValidateStep(rules.Step{Name: "url", Options: rules.Options{"limit": 8192}}))
	require.Error(t, reg.ValidateStep(rules.Step{Name: "url", Options: rules.Options{"quality": 80}}))
}

func TestTranspile(t *testing.T) {
	reg := testRegistry(t, testEnv(t))

	tests := []struct {
		name     string
		moduleID string
		source   string
		opts     rules.Options
		contains []string
		wantErr  bool
	}{
		{
			name:     "jsx automatic runtime",
			moduleID: "src/app.jsx",
			source:   "export const App = () => <div>hi</div>;",
			contains: []string{"react/jsx-runtime"},
		},
		{
			name:     "jsx classic transform",
			moduleID: "src/app.jsx",
			source:   "export const App = () => <div>hi</div>;",
			opts:     rules.Options{"jsx": "transform"},
			contains: []string{"React.createElement"},
		},
		{
			name:     "define replaces identifiers",
			moduleID: "src/env.js",
			source:   "export const mode = process.env.NODE_ENV;",
			opts:     rules.Options{"define": map[string]any{"process.env.NODE_ENV": `"production"`}},
			contains: []string{`"production"`},
		},
		{
			name:     "syntax error",
			moduleID: "src/broken.js",
			source:   "export const = ;",
			wantErr:  true,
		},
		{
			name:     "unknown format",
			moduleID: "src/a.js",
			source:   "export {}",
			opts:     rules.Options{"format": "amd"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runStep(t, reg, "transpile", transform.Input{ModuleID: tt.moduleID, Content: []byte(tt.source)}, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, ".js", out.Meta.Ext)
			for _, s := range tt.contains {
				require.Contains(t, string(out.Content), s)
			}
		})
	}
}

func TestTranspileSyntaxErrorHasLocation(t *testing.T) {
	reg := testRegistry(t, testEnv(t))
	_, err := runStep(t, reg, "transpile", transform.Input{ModuleID: "src/broken.js", Content: []byte("let = 1")}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "src/broken.js:1:")
}

func TestMinifyDropsDeadBranches(t *testing.T) {
	env := testEnv(t)
	env.Define = map[string]string{"process.env.NODE_ENV": `"production"`}
	reg := testRegistry(t, env)

	src := `if (process.env.NODE_ENV !== "production") { console.log("dev"); }
export function greet(name) { return "hello " + name; }`

	out, err := runStep(t, reg, "minify", transform.Input{ModuleID: "src/a.js", Content: []byte(src)}, nil)
	require.NoError(t, err)
	require.NotContains(t, string(out.Content), "console.log")
	require.Contains(t, string(out.Content), "hello ")
}

func TestDefine(t *testing.T) {
	env := testEnv(t)
	env.Define = map[string]string{"process.env.NODE_ENV": `"production"`}
	reg := testRegistry(t, env)

	src := "export const mode = process.env.NODE_ENV;\nexport const api = process.env.API;\n"
	opts := rules.Options{"define": map[string]any{"process.env.API": `"/api"`}}

	out, err := runStep(t, reg, "define", transform.Input{ModuleID: "src/env.js", Content: []byte(src)}, opts)
	require.NoError(t, err)
	require.Contains(t, string(out.Content), `mode = "production"`)
	require.Contains(t, string(out.Content), `api = "/api"`)
}

func TestCSS(t *testing.T) {
	reg := testRegistry(t, testEnv(t))

	out, err := runStep(t, reg, "css", transform.Input{
		ModuleID: "src/a.css",
		Content:  []byte(".a { .b { color: red; } }"),
	}, rules.Options{"engines": []any{"chrome58"}})
	require.NoError(t, err)
	require.Contains(t, string(out.Content), ".a .b")
	require.Equal(t, ".css", out.Meta.Ext)

	_, err = runStep(t, reg, "css", transform.Input{ModuleID: "src/a.css", Content: []byte(".a{}")}, rules.Options{"engines": []any{"netscape4"}})
	require.Error(t, err)

	_, err = runStep(t, reg, "css", transform.Input{ModuleID: "src/a.css", Content: []byte(".a{}")}, rules.Options{"engines": "chrome58"})
	require.Error(t, err)
}

func TestExtractIsIdentity(t *testing.T) {
	reg := testRegistry(t, testEnv(t))
	out, err := runStep(t, reg, "extract", transform.Input{ModuleID: "a.css", Content: []byte(".a{}")}, nil)
	require.NoError(t, err)
	require.Equal(t, ".a{}", string(out.Content))
}

func TestURL(t *testing.T) {
	env := testEnv(t)
	reg := testRegistry(t, env)

	t.Run("inlines below limit", func(t *testing.T) {
		out, err := runStep(t, reg, "url", transform.Input{ModuleID: "src/img/dot.png", Content: []byte("tiny")}, rules.Options{"limit": 8192})
		require.NoError(t, err)
		require.True(t, out.Meta.Inlined)
		require.True(t, strings.HasPrefix(out.Meta.URL, "data:image/png;base64,"))
		require.Empty(t, out.Meta.Files)
		require.Equal(t, ".js", out.Meta.Ext)
		require.Equal(t, `export default "`+out.Meta.URL+`";`+"\n", string(out.Content))
	})

	t.Run("emits at limit", func(t *testing.T) {
		content := bytes.Repeat([]byte("x"), 16)
		out, err := runStep(t, reg, "url", transform.Input{ModuleID: "src/img/logo.png", Content: content}, rules.Options{
			"limit": 16,
			"name":  "images/[name].[ext]",
		})
		require.NoError(t, err)
		require.False(t, out.Meta.Inlined)
		require.Equal(t, "/static/images/logo.png", out.Meta.URL)
		require.Len(t, out.Meta.Files, 1)
		require.Equal(t, "images/logo.png", out.Meta.Files[0].Path)
		require.Equal(t, naming.KindAsset, out.Meta.Files[0].Kind)
		require.Equal(t, "src/img/logo.png", out.Meta.Files[0].Key)
		require.Equal(t, content, out.Meta.Files[0].Content)
	})

	t.Run("explicit mimetype", func(t *testing.T) {
		out, err := runStep(t, reg, "url", transform.Input{ModuleID: "src/font.woff", Content: []byte("w")}, rules.Options{"mimetype": "application/font-woff"})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(out.Meta.URL, "data:application/font-woff;base64,"))
	})

	t.Run("bad limit", func(t *testing.T) {
		_, err := runStep(t, reg, "url", transform.Input{ModuleID: "a.png"}, rules.Options{"limit": true})
		require.Error(t, err)
	})
}

func TestFile(t *testing.T) {
	env := testEnv(t)
	reg := testRegistry(t, env)

	out, err := runStep(t, reg, "file", transform.Input{ModuleID: "assets/icons/menu.svg", Content: []byte("<svg/>")}, rules.Options{"name": "fonts/[name].[hash:4].[ext]"})
	require.NoError(t, err)
	require.Len(t, out.Meta.Files, 1)

	want, err := env.Namer.Resolve("fonts/[name].[hash:4].[ext]", []byte("<svg/>"), "assets/icons/menu.svg")
	require.NoError(t, err)
	require.Equal(t, want, out.Meta.Files[0].Path)
	require.Equal(t, "/static/"+want, out.Meta.URL)
	require.Equal(t, "image/svg+xml", out.Meta.MimeType)
}

func TestOptimizeImage(t *testing.T) {
	reg := testRegistry(t, testEnv(t))

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var raw bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&raw, img))

	out, err := runStep(t, reg, "image", transform.Input{ModuleID: "red.png", Content: raw.Bytes()}, rules.Options{"level": "best"})
	require.NoError(t, err)
	require.Less(t, len(out.Content), raw.Len())

	decoded, err := png.Decode(bytes.NewReader(out.Content))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())

	out, err = runStep(t, reg, "image", transform.Input{ModuleID: "notes.txt", Content: []byte("plain text")}, nil)
	require.NoError(t, err)
	require.Equal(t, "plain text", string(out.Content))

	_, err = runStep(t, reg, "image", transform.Input{ModuleID: "red.png", Content: raw.Bytes()}, rules.Options{"level": "ultra"})
	require.Error(t, err)

	_, err = runStep(t, reg, "image", transform.Input{ModuleID: "red.png", Content: raw.Bytes()}, rules.Options{"quality": 0})
	require.Error(t, err)
}
