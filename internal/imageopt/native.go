package imageopt

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Native recompresses with image/jpeg and image/png. JPEG output is always
// baseline: the standard encoder has no progressive mode.
type Native struct {
	Opts Options
}

// NewNative returns a Native optimizer.
func NewNative(opts Options) *Native {
	return &Native{Opts: opts}
}

func (n *Native) Name() string { return "native" }

// Optimize re-encodes JPEG at the configured quality. PNG is re-encoded
// losslessly after reducing to grayscale or a palette when the pixels allow
// it; the original is kept when that is not smaller.
func (n *Native) Optimize(ctx context.Context, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f, err := Sniff(data)
	if err != nil {
		return Result{}, err
	}
	switch f {
	case FormatJPEG:
		return n.jpeg(data)
	default:
		return n.png(data)
	}
}

func (n *Native) jpeg(data []byte) (Result, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode jpeg: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.Opts.JPEGQuality}); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Result{Data: buf.Bytes(), Format: FormatJPEG}, nil
}

func (n *Native) png(data []byte) (Result, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode png: %w", err)
	}
	enc := png.Encoder{CompressionLevel: compressionFor(n.Opts.PNGLevel)}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, reducePNG(img)); err != nil {
		return Result{}, fmt.Errorf("encode png: %w", err)
	}
	return keepSmaller(data, buf.Bytes(), FormatPNG), nil
}

// compressionFor maps an optipng effort level onto zlib effort.
func compressionFor(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.BestSpeed
	case level < 3:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// reducePNG returns an image with the smallest lossless color model for
// 8-bit sources: Gray when every pixel is opaque gray, Paletted when there
// are at most 256 distinct colors and no partial transparency. Other images
// are returned unchanged.
func reducePNG(img image.Image) image.Image {
	var pix []uint8
	var stride int
	switch m := img.(type) {
	case *image.NRGBA:
		pix, stride = m.Pix, m.Stride
	case *image.RGBA:
		// Premultiplied values only map back losslessly when opaque.
		if !m.Opaque() {
			return img
		}
		pix, stride = m.Pix, m.Stride
	default:
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	at := func(x, y int) color.NRGBA {
		p := pix[y*stride+x*4 : y*stride+x*4+4 : y*stride+x*4+4]
		return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
	}

	gray, paletted := true, true
	index := make(map[color.NRGBA]uint8, 256)
	for y := 0; y < h && (gray || paletted); y++ {
		for x := 0; x < w; x++ {
			c := at(x, y)
			if gray && (c.A != 0xff || c.R != c.G || c.G != c.B) {
				gray = false
			}
			if !paletted {
				continue
			}
			if c.A != 0xff && c.A != 0 {
				paletted = false
				continue
			}
			if _, ok := index[c]; !ok {
				if len(index) == 256 {
					paletted = false
					continue
				}
				index[c] = uint8(len(index))
			}
		}
	}

	switch {
	case gray:
		out := image.NewGray(b)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*out.Stride+x] = at(x, y).R
			}
		}
		return out
	case paletted:
		palette := make(color.Palette, len(index))
		for c, i := range index {
			palette[i] = c
		}
		out := image.NewPaletted(b, palette)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*out.Stride+x] = index[at(x, y)]
			}
		}
		return out
	default:
		return img
	}
}
