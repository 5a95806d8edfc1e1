// Package rules classifies module paths into the rule whose transform chain applies to them.
package rules

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
)

// Predicate decides whether a rule's test accepts a module path.
type Predicate interface {
	Matches(modulePath string) bool
	String() string
}

// Extensions matches paths by file extension. Entries are normalised to a
// lowercase form with a leading dot.
type Extensions []string

// NewExtensions builds an extension set, normalising each entry.
func NewExtensions(exts ...string) Extensions {
	out := make(Extensions, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}

func (e Extensions) Matches(modulePath string) bool {
	ext := strings.ToLower(path.Ext(stripQuery(modulePath)))
	return ext != "" && slices.Contains(e, ext)
}

func (e Extensions) String() string {
	return "extensions[" + strings.Join(e, ",") + "]"
}

// Pattern matches paths against a regular expression.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles expr into a Pattern predicate.
func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return &Pattern{re: re}, nil
}

func (p *Pattern) Matches(modulePath string) bool {
	return p.re.MatchString(modulePath)
}

func (p *Pattern) String() string {
	return "pattern[" + p.re.String() + "]"
}

// Func adapts a plain function into a Predicate. Name is used for diagnostics
// and shadowing checks, so two Funcs with the same name are treated as equal tests.
type Func struct {
	Name string
	Fn   func(modulePath string) bool
}

func (f Func) Matches(modulePath string) bool {
	return f.Fn != nil && f.Fn(modulePath)
}

func (f Func) String() string {
	return "func[" + f.Name + "]"
}

// PathPrefixes is an include or exclude filter made of slash separated
// directory prefixes relative to the source root.
type PathPrefixes []string

// Contains reports whether modulePath equals one of the prefixes or sits beneath it.
func (p PathPrefixes) Contains(modulePath string) bool {
	for _, prefix := range p {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" || prefix == "." {
			return true
		}
		if modulePath == prefix || strings.HasPrefix(modulePath, prefix+"/") {
			return true
		}
	}
	return false
}

// stripQuery drops a resource query such as "?v=4.7.0" or "#iefix" from a path.
func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
