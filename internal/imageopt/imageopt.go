// Package imageopt recompresses raster images. Two backends implement
// [Optimizer]: [Native] uses the Go image codecs, [External] drives mozjpeg
// cjpeg and optipng through a toolexec.Runner.
package imageopt

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedImage is returned for content that is neither JPEG nor PNG,
// whatever its file extension claims.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Format is a sniffed raster format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Options are the recompression targets shared by both backends.
type Options struct {
	JPEGQuality int  // 1..100
	Progressive bool // Progressive JPEG scans, where the backend supports it.
	PNGLevel    int  // optipng-style effort level, 0..7
}

// Result is one optimized image.
type Result struct {
	Data   []byte
	Format Format
	// Original is set when the optimized encoding was not smaller and the
	// input bytes were kept unchanged.
	Original bool
}

// Optimizer recompresses one image held in memory. Implementations must be
// safe for concurrent use.
type Optimizer interface {
	Name() string
	Optimize(ctx context.Context, data []byte) (Result, error)
}

// Sniff detects the format of data from its content.
func Sniff(data []byte) (Format, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/jpeg"):
		return FormatJPEG, nil
	case mt.Is("image/png"):
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mt.String())
	}
}

// keepSmaller returns the optimized bytes unless they are not smaller than
// the original.
func keepSmaller(original, optimized []byte, f Format) Result {
	if len(optimized) == 0 || len(optimized) >= len(original) {
		return Result{Data: original, Format: f, Original: true}
	}
	return Result{Data: optimized, Format: f}
}
