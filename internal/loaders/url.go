package loaders

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

const (
	// DefaultInlineLimit is the size in bytes from which the url loader emits
	// a file instead of a data URI.
	DefaultInlineLimit = 8192
	defaultAssetName   = "[hash].[ext]"
)

// url inlines small assets as base64 data URIs and emits larger ones as files.
func (env Env) url(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	limit, err := opts.Int("limit", DefaultInlineLimit)
	if err != nil {
		return transform.Output{}, err
	}
	mimetype, err := opts.String("mimetype", "")
	if err != nil {
		return transform.Output{}, err
	}
	if mimetype == "" {
		mimetype = mimeType(in.ModuleID)
	}

	if limit > 0 && len(in.Content) < limit {
		uri := "data:" + mimetype + ";base64," + base64.StdEncoding.EncodeToString(in.Content)

		meta := in.Meta
		meta.URL = uri
		meta.Inlined = true
		meta.MimeType = mimetype
		return exportURL(meta), nil
	}

	return env.emitFile(in, opts, mimetype)
}

// file always emits the asset under its name template.
func (env Env) file(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	return env.emitFile(in, opts, mimeType(in.ModuleID))
}

func (env Env) emitFile(in transform.Input, opts rules.Options, mimetype string) (transform.Output, error) {
	if env.Namer == nil {
		return transform.Output{}, fmt.Errorf("file emission requires a namer")
	}
	name, err := opts.String("name", defaultAssetName)
	if err != nil {
		return transform.Output{}, err
	}

	art, err := env.Namer.Artifact(in.ModuleID, naming.KindAsset, name, in.Content, in.ModuleID)
	if err != nil {
		return transform.Output{}, err
	}

	meta := in.Meta
	meta.URL = naming.PublicURL(env.PublicPath, art.Path)
	meta.Inlined = false
	meta.MimeType = mimetype
	meta.Files = append(slices.Clone(meta.Files), art)
	return exportURL(meta), nil
}

// exportURL turns an asset into a script module exporting its URL.
func exportURL(meta transform.Meta) transform.Output {
	meta.Ext = ".js"
	return transform.Output{
		Content: []byte("export default " + strconv.Quote(meta.URL) + ";\n"),
		Meta:    meta,
	}
}

func mimeType(moduleID string) string {
	ext := strings.ToLower(path.Ext(moduleID))
	switch ext {
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".ttf":
		return "font/ttf"
	case ".eot":
		return "application/vnd.ms-fontobject"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
