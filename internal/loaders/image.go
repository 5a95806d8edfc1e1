package loaders

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// optimizeImage re-encodes JPEG and PNG images and keeps the result only when
// it is smaller than the input. Other formats pass through.
func optimizeImage(_ context.Context, in transform.Input, opts rules.Options) (transform.Output, error) {
	quality, err := opts.Int("quality", 75)
	if err != nil {
		return transform.Output{}, err
	}
	if quality < 1 || quality > 100 {
		return transform.Output{}, fmt.Errorf("quality %d out of range [1, 100]", quality)
	}
	level, err := opts.String("level", "best")
	if err != nil {
		return transform.Output{}, err
	}
	compression, err := pngLevel(level)
	if err != nil {
		return transform.Output{}, err
	}

	var buf bytes.Buffer
	switch http.DetectContentType(in.Content) {
	case "image/jpeg":
		img, err := jpeg.Decode(bytes.NewReader(in.Content))
		if err != nil {
			return transform.Output{}, fmt.Errorf("failed to decode jpeg: %w", err)
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return transform.Output{}, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case "image/png":
		img, err := png.Decode(bytes.NewReader(in.Content))
		if err != nil {
			return transform.Output{}, fmt.Errorf("failed to decode png: %w", err)
		}
		enc := png.Encoder{CompressionLevel: compression}
		if err := enc.Encode(&buf, img); err != nil {
			return transform.Output{}, fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return transform.Output{Content: in.Content, Meta: in.Meta}, nil
	}

	if buf.Len() >= len(in.Content) {
		log.Debug().Str("module", in.ModuleID).Int("original_bytes", len(in.Content)).Int("encoded_bytes", buf.Len()).Msg("Re-encoded image not smaller, keeping original")
		return transform.Output{Content: in.Content, Meta: in.Meta}, nil
	}

	log.Debug().Str("module", in.ModuleID).Int("original_bytes", len(in.Content)).Int("encoded_bytes", buf.Len()).Msg("Image optimised")
	return transform.Output{Content: buf.Bytes(), Meta: in.Meta}, nil
}

func pngLevel(s string) (png.CompressionLevel, error) {
	switch s {
	case "default":
		return png.DefaultCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none":
		return png.NoCompression, nil
	default:
		return 0, fmt.Errorf("unknown png level %q", s)
	}
}
