package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
)

// ImageTaskPayload names the stored object to normalise.
type ImageTaskPayload struct {
	Key string `json:"key"`
}

// HandleImageProcessTask shrinks an uploaded photo to the configured maximum dimension.
// Images already within bounds are left untouched.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Key == "" {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	imgData, _, err := p.storage.Download(ctx, payload.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("Image %s not found, skipping", payload.Key)
			return fmt.Errorf("image not found: %w", asynq.SkipRetry)
		}
		return err
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if maxSizeBytes > 0 && int64(len(imgData)) > maxSizeBytes {
		log.Printf("Image %s exceeds max size (%d > %d bytes). Skipping.", payload.Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image %s: %v", payload.Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	w, h := uint(img.Bounds().Dx()), uint(img.Bounds().Dy())
	if maxDim == 0 || (w <= maxDim && h <= maxDim) {
		return nil
	}

	resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to re-encode resized image: %w", err)
	}
	if err := p.storage.Put(ctx, payload.Key, buf.Bytes(), "image/jpeg"); err != nil {
		return fmt.Errorf("failed to store processed image: %w", err)
	}

	log.Printf("Resized %s image %s from %dx%d to %dx%d", format, payload.Key, w, h, resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}
