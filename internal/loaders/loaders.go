// Package loaders provides the concrete transform steps: esbuild backed
// transpile, minify, define and css steps, the extract marker step, url and file
// loaders for static assets and an image optimiser.
package loaders

import (
	"maps"

	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// Env carries build-wide settings the loaders close over. It is read only
// once registered, which keeps every step a pure function of its input.
type Env struct {
	Namer      *naming.Namer
	PublicPath string
	// Define holds global identifier replacements such as process.env.NODE_ENV.
	Define map[string]string
	// Minify is the default for the transpile and css steps.
	Minify bool
}

// Register adds every loader kind to reg.
func Register(reg *transform.Registry, env Env) error {
	env.Define = maps.Clone(env.Define)

	kinds := []transform.Kind{
		{Name: "transpile", Options: []string{"jsx", "format", "target", "minify", "sourcemap", "define"}, Run: env.transpile},
		{Name: "minify", Options: []string{"define", "identifiers"}, Run: env.minify},
		{Name: "define", Options: []string{"define"}, Run: env.define},
		{Name: "css", Options: []string{"minify", "engines"}, Run: env.css},
		{Name: "extract", Run: extract},
		{Name: "url", Options: []string{"limit", "name", "mimetype"}, Run: env.url},
		{Name: "file", Options: []string{"name"}, Run: env.file},
		{Name: "image", Options: []string{"quality", "level"}, Run: optimizeImage},
	}

	for _, k := range kinds {
		if err := reg.Register(k); err != nil {
			return err
		}
	}
	return nil
}
