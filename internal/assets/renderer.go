// Package assets renders server side templates against the asset registry so
// markup references the same hashed URLs the client bundles were built with.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"maps"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/assetpipe/internal/registry"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

// Renderer executes html templates with an asset func bound to a registry.
type Renderer struct {
	reg  *registry.Registry
	tmpl *template.Template
}

// NewWithTemplate loads a single template file.
func NewWithTemplate(reg *registry.Registry, templatePath string, customFuncs template.FuncMap) (*Renderer, error) {
	r := &Renderer{reg: reg}
	tmpl, err := template.New(templatePath).Funcs(r.funcs(customFuncs)).ParseFiles(templatePath)
	if err != nil {
		return nil, err
	}
	r.tmpl = tmpl
	return r, nil
}

// NewWithTemplateDir loads every *.html template in templateDir.
func NewWithTemplateDir(reg *registry.Registry, templateDir string, customFuncs template.FuncMap) (*Renderer, error) {
	r := &Renderer{reg: reg}
	tmpl, err := template.New(templateDir).Funcs(r.funcs(customFuncs)).ParseGlob(templateDir + "/*.html")
	if err != nil {
		return nil, err
	}
	r.tmpl = tmpl
	return r, nil
}

func (r *Renderer) funcs(customFuncs template.FuncMap) template.FuncMap {
	funcs := template.FuncMap{
		"asset":   r.Asset,
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}

	// Merge custom functions
	maps.Copy(funcs, customFuncs)
	return funcs
}

// Asset resolves key to its built URL. A miss fails the template rather than
// rendering a broken reference.
func (r *Renderer) Asset(key string) (string, error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("key", key))
	m.ManifestLookups.Add(context.Background(), 1, attrs)

	url, err := r.reg.Lookup(key)
	if err != nil {
		m.ManifestLookupMisses.Add(context.Background(), 1, attrs)
		return "", err
	}
	return url, nil
}

// Render executes templateName into w.
func (r *Renderer) Render(w io.Writer, templateName string, data any) error {
	if r.tmpl == nil {
		return errors.New("template not loaded, use NewWithTemplate or NewWithTemplateDir")
	}
	if err := r.tmpl.ExecuteTemplate(w, templateName, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", templateName, err)
	}
	return nil
}

// Handler returns an http.HandlerFunc that renders the given template with the title and request context.
func (r *Renderer) Handler(templateName, title string, contextFn func(ctx context.Context) any) http.HandlerFunc {
	if contextFn == nil {
		contextFn = func(ctx context.Context) any {
			return nil
		}
	}

	return func(w http.ResponseWriter, req *http.Request) {
		data := map[string]any{
			"Title":   title,
			"Context": contextFn(req.Context()),
		}

		// buffer so a failed lookup does not leave a half written page
		var buf bytes.Buffer
		if err := r.Render(&buf, templateName, data); err != nil {
			log.Error().Err(err).Msg("Failed to render template")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	}
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
