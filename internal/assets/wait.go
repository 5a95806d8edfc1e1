package assets

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/registry"
)

// WaitForManifest reads the manifest at path, retrying while it does not exist
// yet. A manifest that exists but is malformed fails immediately.
func WaitForManifest(ctx context.Context, path string, maxWait time.Duration) (*registry.Registry, error) {
	operation := func() (*registry.Registry, error) {
		reg, err := registry.ReadFile(path)
		if err == nil {
			return reg, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("manifest", path).Msg("Manifest not written yet, retrying")
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(maxWait),
	)
}
