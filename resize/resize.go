// Package resize conditionally recompresses images that exceed the upload
// size ceiling.
package resize

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	// DefaultMaxBytes is the size above which an image gets recompressed.
	DefaultMaxBytes = 20 << 20
	// DefaultMaxEdge caps the longer edge of a recompressed image.
	DefaultMaxEdge = 3000
	// DefaultQuality is the JPEG quality used for recompression.
	DefaultQuality = 90
)

// Normalizer downsamples and recompresses oversized images. The zero value
// is not usable; construct with New.
type Normalizer struct {
	MaxBytes int64
	MaxEdge  int
	Quality  int
	Log      *zap.Logger
}

func New(log *zap.Logger) *Normalizer {
	return &Normalizer{
		MaxBytes: DefaultMaxBytes,
		MaxEdge:  DefaultMaxEdge,
		Quality:  DefaultQuality,
		Log:      log,
	}
}

// Result reports what Normalize did. When Err is set, Data still holds the
// original bytes so the upload can proceed with the unmodified file.
type Result struct {
	Data         []byte
	Resized      bool
	OriginalSize int64
	NewSize      int64
	Width        int
	Height       int
	Err          error
}

// Normalize returns the input unchanged when it fits under MaxBytes.
// Oversized input is resized so its longer edge is at most MaxEdge (never
// upscaled) and re-encoded as JPEG at the configured quality. Decode or
// encode failures fall back to the original bytes with an annotation.
func (n *Normalizer) Normalize(data []byte, filename string) Result {
	size := int64(len(data))
	if size <= n.MaxBytes {
		return Result{Data: data, OriginalSize: size, NewSize: size}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		n.Log.Warn("decode failed, uploading original",
			zap.String("filename", filename), zap.Error(err))
		return Result{Data: data, OriginalSize: size, NewSize: size,
			Err: fmt.Errorf("decode %s: %w", filename, err)}
	}

	bounds := img.Bounds()
	w, h := fitDimensions(bounds.Dx(), bounds.Dy(), n.MaxEdge)
	if w != bounds.Dx() || h != bounds.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(n.Quality)); err != nil {
		n.Log.Warn("encode failed, uploading original",
			zap.String("filename", filename), zap.Error(err))
		return Result{Data: data, OriginalSize: size, NewSize: size,
			Err: fmt.Errorf("encode %s: %w", filename, err)}
	}

	n.Log.Info("recompressed oversized image",
		zap.String("filename", filename),
		zap.Int64("original_size", size),
		zap.Int("new_size", buf.Len()),
		zap.Int("width", w),
		zap.Int("height", h))

	return Result{
		Data:         buf.Bytes(),
		Resized:      true,
		OriginalSize: size,
		NewSize:      int64(buf.Len()),
		Width:        w,
		Height:       h,
	}
}

// fitDimensions scales (w, h) so the longer edge equals maxEdge, preserving
// aspect ratio and never upscaling.
func fitDimensions(w, h, maxEdge int) (int, int) {
	long := w
	if h > w {
		long = h
	}
	if long <= maxEdge || long == 0 {
		return w, h
	}
	scale := float64(maxEdge) / float64(long)
	if w >= h {
		return maxEdge, max(1, int(float64(h)*scale+0.5))
	}
	return max(1, int(float64(w)*scale+0.5)), maxEdge
}
