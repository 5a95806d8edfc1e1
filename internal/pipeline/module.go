package pipeline

import (
	"context"
	"mime"
	"path"
	"strings"
)

// Dependency is a reference from one module to another found during discovery.
type Dependency struct {
	// Specifier is the reference as written in the source, e.g. ./hero.png.
	Specifier string
	ModuleID  string
}

// Module is a discovered unit of source content. It is not modified once
// discovered.
type Module struct {
	// ID is the slash separated path relative to the source root.
	ID           string
	Content      []byte
	ContentType  string
	Dependencies []Dependency
}

// Discoverer produces the module set for a build, in a stable order.
type Discoverer interface {
	Discover(ctx context.Context) ([]Module, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context) ([]Module, error)

func (f DiscovererFunc) Discover(ctx context.Context) ([]Module, error) {
	return f(ctx)
}

// Modules is a fixed module set.
type Modules []Module

func (m Modules) Discover(context.Context) ([]Module, error) {
	return m, nil
}

// ContentType infers a MIME type from the module extension.
func ContentType(moduleID string) string {
	ext := strings.ToLower(path.Ext(moduleID))
	switch ext {
	case ".jsx", ".mjs":
		return "text/javascript"
	case ".ts", ".tsx":
		return "text/typescript"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
