// Package discover walks a source tree and produces the module set for a
// build, including the relative references each module makes.
package discover

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/assetpipe/internal/pipeline"
)

var (
	scriptRef = regexp.MustCompile(`(?:\bfrom\s*|\bimport\s*\(?\s*|\brequire\(\s*)["'](\.{1,2}/[^"'\n]+)["']`)
	styleRef  = regexp.MustCompile(`url\(\s*["']?(\.{1,2}/[^"')\s]+)["']?\s*\)|@import\s+["'](\.{1,2}/[^"'\n]+)["']`)
)

var scannedExt = []string{".js", ".jsx", ".mjs", ".ts", ".tsx", ".css", ".html"}

// Walker discovers modules below Root. Entries are visited in lexical order
// so discovery order is stable across runs.
type Walker struct {
	Root string
	// Exclude lists root-relative path prefixes to skip, e.g. "vendor/".
	Exclude []string
}

var _ pipeline.Discoverer = (*Walker)(nil)

// Discover implements pipeline.Discoverer.
func (w *Walker) Discover(ctx context.Context) ([]pipeline.Module, error) {
	root := filepath.Clean(w.Root)

	var modules []pipeline.Module
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		id := filepath.ToSlash(rel)

		if strings.HasPrefix(d.Name(), ".") || w.excluded(id) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", id, err)
		}
		modules = append(modules, pipeline.Module{
			ID:          id,
			Content:     content,
			ContentType: pipeline.ContentType(id),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(modules))
	for _, m := range modules {
		known[m.ID] = true
	}
	for i := range modules {
		modules[i].Dependencies = References(modules[i].ID, modules[i].Content, known)
	}

	zerolog.Ctx(ctx).Debug().Str("root", root).Int("modules", len(modules)).Msg("Walked source tree")
	return modules, nil
}

func (w *Walker) excluded(id string) bool {
	for _, prefix := range w.Exclude {
		prefix = strings.TrimSuffix(prefix, "/")
		if id == prefix || strings.HasPrefix(id, prefix+"/") {
			return true
		}
	}
	return false
}

// References scans content for relative specifiers and resolves them
// against moduleID. Only specifiers naming a module in known are returned,
// each once, in order of first appearance.
func References(moduleID string, content []byte, known map[string]bool) []pipeline.Dependency {
	ext := strings.ToLower(path.Ext(moduleID))
	if !slices.Contains(scannedExt, ext) {
		return nil
	}

	var specs []string
	for _, m := range scriptRef.FindAllSubmatch(content, -1) {
		specs = append(specs, string(m[1]))
	}
	if ext == ".css" || ext == ".html" {
		for _, m := range styleRef.FindAllSubmatch(content, -1) {
			specs = append(specs, string(cmpOr(m[1], m[2])))
		}
	}

	var deps []pipeline.Dependency
	seen := map[string]bool{}
	for _, spec := range specs {
		if seen[spec] {
			continue
		}
		seen[spec] = true

		target := path.Join(path.Dir(moduleID), stripSuffix(spec))
		if !known[target] {
			continue
		}
		deps = append(deps, pipeline.Dependency{Specifier: spec, ModuleID: target})
	}
	return deps
}

// stripSuffix drops query strings and fragments, e.g. font.woff?v=1.2.3.
func stripSuffix(spec string) string {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		return spec[:i]
	}
	return spec
}

func cmpOr(a, b []byte) []byte {
	if len(a) > 0 {
		return a
	}
	return b
}
