package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/assetpipe/internal/registry"
)

type LookupCmd struct {
	Manifest string   `help:"path to the manifest" default:"build/manifest.json" env:"ASSETPIPE_MANIFEST"`
	JSON     bool     `help:"print the resolved entries as JSON" default:"false"`
	Keys     []string `arg:"" optional:"" help:"asset keys to resolve, every key when omitted"`
}

func (c *LookupCmd) Run(ctx context.Context, globals *Globals) error {
	reg, err := registry.ReadFile(c.Manifest)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := registry.Init(reg); err != nil {
		return err
	}
	defer registry.Teardown()

	keys := c.Keys
	if len(keys) == 0 {
		keys = reg.Keys()
	}

	return c.print(os.Stdout, keys)
}

func (c *LookupCmd) print(w io.Writer, keys []string) error {
	resolved := make(map[string]string, len(keys))
	var missing []string
	for _, k := range keys {
		url, err := registry.Lookup(k)
		if err != nil {
			missing = append(missing, k)
			continue
		}
		resolved[k] = url
	}

	if c.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resolved); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			if url, ok := resolved[k]; ok {
				fmt.Fprintf(tw, "%s\t%s\n", k, url)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, strings.Join(missing, ", "))
	}
	return nil
}
