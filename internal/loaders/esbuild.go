package loaders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

var enginePattern = regexp.MustCompile(`^([a-z]+)([0-9][0-9.]*)$`)

func (env Env) transpile(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	jsx, err := opts.String("jsx", "automatic")
	if err != nil {
		return transform.Output{}, err
	}
	format, err := opts.String("format", "esm")
	if err != nil {
		return transform.Output{}, err
	}
	target, err := opts.String("target", "es2017")
	if err != nil {
		return transform.Output{}, err
	}
	minify, err := opts.Bool("minify", env.Minify)
	if err != nil {
		return transform.Output{}, err
	}
	sourcemap, err := opts.Bool("sourcemap", false)
	if err != nil {
		return transform.Output{}, err
	}
	define, err := env.mergeDefine(opts)
	if err != nil {
		return transform.Output{}, err
	}

	to := api.TransformOptions{
		Sourcefile:        in.ModuleID,
		Loader:            scriptLoader(in.ModuleID),
		Define:            define,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		Sourcemap:         cond(sourcemap, api.SourceMapInline, api.SourceMapNone),
	}
	if to.JSX, err = jsxMode(jsx); err != nil {
		return transform.Output{}, err
	}
	if to.Format, err = outputFormat(format); err != nil {
		return transform.Output{}, err
	}
	if to.Target, err = esTarget(target); err != nil {
		return transform.Output{}, err
	}

	code, err := runTransform(in.Content, to)
	if err != nil {
		return transform.Output{}, err
	}

	meta := in.Meta
	meta.Ext = ".js"
	meta.MimeType = "text/javascript"
	return transform.Output{Content: code, Meta: meta}, nil
}

func (env Env) minify(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	identifiers, err := opts.Bool("identifiers", true)
	if err != nil {
		return transform.Output{}, err
	}
	define, err := env.mergeDefine(opts)
	if err != nil {
		return transform.Output{}, err
	}

	code, err := runTransform(in.Content, api.TransformOptions{
		Sourcefile:        in.ModuleID,
		Loader:            api.LoaderJS,
		Define:            define,
		MinifyWhitespace:  true,
		MinifyIdentifiers: identifiers,
		MinifySyntax:      true,
	})
	if err != nil {
		return transform.Output{}, err
	}
	return transform.Output{Content: code, Meta: in.Meta}, nil
}

// define substitutes global identifiers without otherwise reshaping the code.
func (env Env) define(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	define, err := env.mergeDefine(opts)
	if err != nil {
		return transform.Output{}, err
	}

	code, err := runTransform(in.Content, api.TransformOptions{
		Sourcefile: in.ModuleID,
		Loader:     scriptLoader(in.ModuleID),
		JSX:        api.JSXPreserve,
		Define:     define,
	})
	if err != nil {
		return transform.Output{}, err
	}
	return transform.Output{Content: code, Meta: in.Meta}, nil
}

// css stands in for the PostCSS chain: nesting is lowered for the configured
// engines and the result optionally minified.
func (env Env) css(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	minify, err := opts.Bool("minify", env.Minify)
	if err != nil {
		return transform.Output{}, err
	}

	to := api.TransformOptions{
		Sourcefile:       in.ModuleID,
		Loader:           api.LoaderCSS,
		MinifyWhitespace: minify,
		MinifySyntax:     minify,
	}

	if raw, ok := opts["engines"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return transform.Output{}, &rules.OptionError{Key: "engines", Want: "list", Got: raw}
		}
		for _, item := range list {
			s, _ := item.(string)
			engine, err := parseEngine(s)
			if err != nil {
				return transform.Output{}, err
			}
			to.Engines = append(to.Engines, engine)
		}
	}

	code, err := runTransform(in.Content, to)
	if err != nil {
		return transform.Output{}, err
	}

	meta := in.Meta
	meta.Ext = ".css"
	meta.MimeType = "text/css"
	return transform.Output{Content: code, Meta: meta}, nil
}

// extract passes content through untouched. Flagged as a side output it
// diverts the module's current content into an extraction bundle.
func extract(_ context.Context, in transform.Input, _ rules.Options) (transform.Output, error) {
	return transform.Output{Content: in.Content, Meta: in.Meta}, nil
}

func runTransform(content []byte, opts api.TransformOptions) ([]byte, error) {
	result := api.Transform(string(content), opts)
	if len(result.Errors) > 0 {
		return nil, esbuildError(result.Errors)
	}
	return result.Code, nil
}

func esbuildError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		errs = append(errs, errors.New(msg.Text))
	}
	return errors.Join(errs...)
}

func (env Env) mergeDefine(opts rules.Options) (map[string]string, error) {
	local, err := opts.StringMap("define")
	if err != nil {
		return nil, err
	}
	if len(env.Define) == 0 && len(local) == 0 {
		return nil, nil
	}
	out := maps.Clone(env.Define)
	if out == nil {
		out = map[string]string{}
	}
	maps.Copy(out, local)
	return out, nil
}

func scriptLoader(moduleID string) api.Loader {
	switch strings.ToLower(path.Ext(moduleID)) {
	case ".jsx":
		return api.LoaderJSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	default:
		return api.LoaderJS
	}
}

func jsxMode(s string) (api.JSX, error) {
	switch s {
	case "automatic":
		return api.JSXAutomatic, nil
	case "transform":
		return api.JSXTransform, nil
	case "preserve":
		return api.JSXPreserve, nil
	default:
		return 0, fmt.Errorf("unknown jsx mode %q", s)
	}
}

func outputFormat(s string) (api.Format, error) {
	switch s {
	case "esm":
		return api.FormatESModule, nil
	case "cjs":
		return api.FormatCommonJS, nil
	case "iife":
		return api.FormatIIFE, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

func esTarget(s string) (api.Target, error) {
	switch strings.ToLower(s) {
	case "es2015", "es6":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return 0, fmt.Errorf("unknown target %q", s)
	}
}

func parseEngine(s string) (api.Engine, error) {
	m := enginePattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return api.Engine{}, fmt.Errorf("invalid engine %q, expected e.g. chrome58", s)
	}

	var name api.EngineName
	switch m[1] {
	case "chrome":
		name = api.EngineChrome
	case "edge":
		name = api.EngineEdge
	case "firefox":
		name = api.EngineFirefox
	case "ios":
		name = api.EngineIOS
	case "safari":
		name = api.EngineSafari
	case "opera":
		name = api.EngineOpera
	default:
		return api.Engine{}, fmt.Errorf("unknown engine %q", m[1])
	}
	return api.Engine{Name: name, Version: m[2]}, nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
