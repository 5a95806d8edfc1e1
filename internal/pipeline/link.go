package pipeline

import (
	"regexp"
	"strconv"
)

// linker rewrites references to asset modules with the URL the asset
// exports: default imports become constants, require calls become string
// literals and CSS url() references point at the emitted file or data URI.
type linker struct {
	urls     map[string]string
	patterns map[string]*specPatterns
}

type specPatterns struct {
	importDefault *regexp.Regexp
	require       *regexp.Regexp
	cssURL        *regexp.Regexp
}

func newLinker(urls map[string]string) *linker {
	return &linker{urls: urls, patterns: make(map[string]*specPatterns)}
}

func (l *linker) patternsFor(spec string) *specPatterns {
	if p, ok := l.patterns[spec]; ok {
		return p
	}
	q := regexp.QuoteMeta(spec)
	p := &specPatterns{
		importDefault: regexp.MustCompile(`import\s+([A-Za-z_$][\w$]*)\s+from\s*["']` + q + `["'];?`),
		require:       regexp.MustCompile(`require\(\s*["']` + q + `["']\s*\)`),
		cssURL:        regexp.MustCompile(`url\(\s*["']?` + q + `["']?\s*\)`),
	}
	l.patterns[spec] = p
	return p
}

// link returns content with every dependency on an asset module resolved.
// Content without such dependencies is returned unchanged.
func (l *linker) link(content []byte, deps []Dependency) []byte {
	for _, dep := range deps {
		url, ok := l.urls[dep.ModuleID]
		if !ok {
			continue
		}
		quoted := []byte(strconv.Quote(url))
		p := l.patternsFor(dep.Specifier)

		content = p.importDefault.ReplaceAllFunc(content, func(m []byte) []byte {
			name := p.importDefault.FindSubmatch(m)[1]
			out := append([]byte("const "), name...)
			out = append(out, " = "...)
			out = append(out, quoted...)
			return append(out, ';')
		})
		content = p.require.ReplaceAllFunc(content, func([]byte) []byte {
			return quoted
		})
		content = p.cssURL.ReplaceAllFunc(content, func([]byte) []byte {
			return append(append([]byte("url("), quoted...), ')')
		})
	}
	return content
}
