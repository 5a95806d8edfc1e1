// Package config loads the YAML build configuration.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/rules"
)

// Registerable artifact kinds a variant may publish to the registry.
const (
	RegisterAssets  = "asset"
	RegisterScripts = "script"
	RegisterStyles  = "style"
)

// Supported precompression encodings.
const (
	EncodingGzip = "gzip"
	EncodingZstd = "zstd"
)

// BuildConfig is the top level build file.
type BuildConfig struct {
	// Source is the root module IDs are relative to.
	Source   string            `yaml:"source"`
	Output   OutputConfig      `yaml:"output"`
	Manifest string            `yaml:"manifest"`
	Extract  ExtractConfig     `yaml:"extract"`
	Hash     naming.Config     `yaml:"hash"`
	Workers  int               `yaml:"workers"`
	Minify   bool              `yaml:"minify"`
	Clean    bool              `yaml:"clean"`
	Define   map[string]string `yaml:"define"`

	Precompress PrecompressConfig   `yaml:"precompress"`
	Rules       []rules.RuleConfig `yaml:"rules"`
	Variants    []VariantConfig    `yaml:"variants"`
}

// OutputConfig controls where and under which names artifacts are written.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	PublicPath string `yaml:"publicPath"`
	// Filename names emitted script modules.
	Filename string `yaml:"filename"`
	// Passthrough names modules no rule matched.
	Passthrough string `yaml:"passthrough"`
}

// ExtractConfig controls side-output bundles.
type ExtractConfig struct {
	Filename    string `yaml:"filename"`
	IgnoreOrder bool   `yaml:"ignoreOrder"`
}

// PrecompressConfig lists sidecar encodings written next to artifacts.
type PrecompressConfig struct {
	Encodings []string `yaml:"encodings"`
	MinBytes  int      `yaml:"minBytes"`
}

// VariantConfig overrides build settings for one variant, e.g. the server
// build emitting into its own directory and only registering assets.
type VariantConfig struct {
	Name     string            `yaml:"name"`
	Output   string            `yaml:"output"`
	Minify   *bool             `yaml:"minify"`
	Define   map[string]string `yaml:"define"`
	Register []string          `yaml:"register"`
}

// DefaultConfig returns a configuration equivalent to a production web build:
// scripts transpiled and hashed, styles extracted into one bundle, small
// images inlined and everything else copied under a stable name.
func DefaultConfig() BuildConfig {
	return BuildConfig{
		Source: "src",
		Output: OutputConfig{
			Dir:         "build",
			PublicPath:  "/",
			Filename:    "js/[chunkhash].[name].js",
			Passthrough: "[path][name].[ext]",
		},
		Manifest: "build/manifest.json",
		Extract: ExtractConfig{
			Filename:    "css/[chunkhash].[name].css",
			IgnoreOrder: true,
		},
		Hash:    naming.DefaultConfig(),
		Workers: runtime.NumCPU(),
		Minify:  true,
		Clean:   true,
		Define: map[string]string{
			"process.env.NODE_ENV": `"production"`,
		},
		Precompress: PrecompressConfig{
			Encodings: []string{EncodingGzip, EncodingZstd},
			MinBytes:  1024,
		},
		Rules: DefaultRules(),
		Variants: []VariantConfig{
			{Name: "client"},
		},
	}
}

// DefaultRules returns the rule set DefaultConfig uses.
func DefaultRules() []rules.RuleConfig {
	return []rules.RuleConfig{
		{
			Name:  "scripts",
			Test:  rules.TestConfig{Extensions: []string{".js", ".jsx"}},
			Emit:  true,
			Steps: []rules.Step{{Name: "transpile", Options: rules.Options{"jsx": "automatic"}}},
		},
		{
			Name: "styles",
			Test: rules.TestConfig{Extensions: []string{".css"}},
			Steps: []rules.Step{
				{Name: "css", Options: rules.Options{"engines": []any{"chrome58", "firefox57", "safari11"}}},
				{Name: "extract", SideOutput: true, Bundle: rules.DefaultBundle},
			},
		},
		{
			Name: "images",
			Test: rules.TestConfig{Extensions: []string{".png", ".jpg", ".jpeg", ".gif"}},
			Steps: []rules.Step{
				{Name: "image", Options: rules.Options{"quality": 65, "level": "best"}},
				{Name: "url", Options: rules.Options{"limit": 8192, "name": "images/[name].[ext]"}},
			},
		},
		{
			Name:    "svg",
			Test:    rules.TestConfig{Pattern: `\.svg$`},
			Include: []string{"icons/"},
			Steps:   []rules.Step{{Name: "file", Options: rules.Options{"name": "svg/[name].[ext]"}}},
		},
		{
			Name:  "fonts",
			Test:  rules.TestConfig{Extensions: []string{".woff", ".woff2", ".ttf", ".eot", ".svg"}},
			Steps: []rules.Step{{Name: "file", Options: rules.Options{"name": "fonts/[name].[ext]"}}},
		},
	}
}

// Load reads path and decodes it over DefaultConfig. Rules and variants in
// the file replace the defaults rather than merging with them.
func Load(path string) (BuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BuildConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over DefaultConfig and validates the result.
func Parse(data []byte) (BuildConfig, error) {
	cfg := DefaultConfig()
	cfg.Rules = nil
	cfg.Variants = nil

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BuildConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = []VariantConfig{{Name: "client"}}
	}

	if err := cfg.Validate(); err != nil {
		return BuildConfig{}, err
	}
	return cfg, nil
}

// Validate checks the settings that do not depend on the step registry.
// Rules are compiled separately once loaders are registered.
func (c BuildConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source directory is required")
	}
	if c.Output.Dir == "" {
		return errors.New("output directory is required")
	}
	if c.Manifest == "" {
		return errors.New("manifest path is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	for field, tmpl := range c.templates() {
		if err := naming.ValidateTemplate(tmpl); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if _, err := naming.New(c.Hash); err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	for _, enc := range c.Precompress.Encodings {
		if enc != EncodingGzip && enc != EncodingZstd {
			return fmt.Errorf("unknown precompress encoding %q", enc)
		}
	}

	seen := map[string]bool{}
	for i, v := range c.Variants {
		if v.Name == "" {
			return fmt.Errorf("variant #%d has no name", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate variant %q", v.Name)
		}
		seen[v.Name] = true
		for _, kind := range v.Register {
			if !slices.Contains([]string{RegisterAssets, RegisterScripts, RegisterStyles}, kind) {
				return fmt.Errorf("variant %q: unknown register kind %q", v.Name, kind)
			}
		}
	}
	return nil
}

// Warnings lists name templates that neither embed [name] nor a content hash.
// Every module resolved through such a template lands on the same path, so
// the second one is a naming collision.
func (c BuildConfig) Warnings() []string {
	var out []string
	for field, tmpl := range c.templates() {
		if naming.ValidateTemplate(tmpl) != nil {
			continue
		}
		if !naming.HasHash(tmpl) && !strings.Contains(tmpl, "[name]") {
			out = append(out, fmt.Sprintf("%s: template %q has neither [name] nor a hash, modules will collide", field, tmpl))
		}
	}
	slices.Sort(out)
	return out
}

// templates returns every configured name template keyed by its field.
func (c BuildConfig) templates() map[string]string {
	templates := map[string]string{
		"output.filename":    c.Output.Filename,
		"output.passthrough": c.Output.Passthrough,
		"extract.filename":   c.Extract.Filename,
	}
	for _, r := range c.Rules {
		if r.Filename != "" {
			templates["rules."+r.Name+".filename"] = r.Filename
		}
	}
	return templates
}

// Variant returns the named variant.
func (c BuildConfig) Variant(name string) (VariantConfig, bool) {
	for _, v := range c.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantConfig{}, false
}

// OutputDir returns the directory the variant writes to.
func (c BuildConfig) OutputDir(v VariantConfig) string {
	return cond(v.Output != "", v.Output, c.Output.Dir)
}

// MinifyFor returns the effective minify setting of the variant.
func (c BuildConfig) MinifyFor(v VariantConfig) bool {
	if v.Minify != nil {
		return *v.Minify
	}
	return c.Minify
}

// DefineFor merges the variant's replacements over the build-wide ones.
func (c BuildConfig) DefineFor(v VariantConfig) map[string]string {
	out := make(map[string]string, len(c.Define)+len(v.Define))
	maps.Copy(out, c.Define)
	maps.Copy(out, v.Define)
	return out
}

// Registers reports whether the variant publishes artifacts of kind to the
// registry. An empty list registers everything.
func (v VariantConfig) Registers(kind naming.Kind) bool {
	if len(v.Register) == 0 {
		return true
	}
	if kind == naming.KindPassthrough {
		kind = naming.KindAsset
	}
	return slices.Contains(v.Register, string(kind))
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
