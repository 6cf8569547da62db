package imageopt

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtomWave/AW-converter-2-0/internal/toolexec"
)

var defaultOpts = Options{JPEGQuality: 70, Progressive: true, PNGLevel: 3}

// gradient returns an opaque image with many distinct colors.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 7), uint8(y * 5), uint8(x ^ y), 0xff})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image, level png.CompressionLevel) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	img := gradient(8, 8)

	f, err := Sniff(encodePNG(t, img, png.DefaultCompression))
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)

	f, err = Sniff(encodeJPEG(t, img, 90))
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)

	_, err = Sniff([]byte("GIF89a not really"))
	assert.True(t, errors.Is(err, ErrUnsupportedImage))
}

func TestNative_JPEG(t *testing.T) {
	src := encodeJPEG(t, gradient(64, 48), 100)

	res, err := NewNative(defaultOpts).Optimize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, res.Format)
	assert.False(t, res.Original)
	assert.Less(t, len(res.Data), len(src))

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 48, cfg.Height)
}

func TestNative_PNGPalette(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	red := color.NRGBA{0xff, 0, 0, 0xff}
	blue := color.NRGBA{0, 0, 0xff, 0xff}
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if (x/5+y/5)%2 == 0 {
				img.SetNRGBA(x, y, red)
			} else {
				img.SetNRGBA(x, y, blue)
			}
		}
	}
	src := encodePNG(t, img, png.NoCompression)

	res, err := NewNative(defaultOpts).Optimize(context.Background(), src)
	require.NoError(t, err)
	require.False(t, res.Original)
	assert.Less(t, len(res.Data), len(src))

	decoded, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	_, isPaletted := decoded.(*image.Paletted)
	assert.True(t, isPaletted)
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			want := color.NRGBAModel.Convert(img.At(x, y))
			got := color.NRGBAModel.Convert(decoded.At(x, y))
			require.Equal(t, want, got, "pixel %d,%d", x, y)
		}
	}
}

func TestNative_PNGGray(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 300, 2))
	for x := 0; x < 300; x++ {
		v := uint8(x % 256)
		img.SetNRGBA(x, 0, color.NRGBA{v, v, v, 0xff})
		img.SetNRGBA(x, 1, color.NRGBA{v, v, v, 0xff})
	}
	reduced := reducePNG(img)
	g, ok := reduced.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(7), g.GrayAt(7, 1).Y)
}

func TestReducePNG_KeepsRichImages(t *testing.T) {
	img := gradient(64, 64)
	assert.Same(t, image.Image(img), reducePNG(img))

	translucent := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	translucent.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 128})
	assert.Same(t, image.Image(translucent), reducePNG(translucent))
}

func TestNative_PNGKeepsSmallerOriginal(t *testing.T) {
	src := encodePNG(t, gradient(32, 32), png.BestCompression)
	opts := defaultOpts
	opts.PNGLevel = 0

	res, err := NewNative(opts).Optimize(context.Background(), src)
	require.NoError(t, err)
	if res.Original {
		assert.Equal(t, src, res.Data)
	} else {
		assert.Less(t, len(res.Data), len(src))
	}
}

func TestNative_Rejects(t *testing.T) {
	_, err := NewNative(defaultOpts).Optimize(context.Background(), []byte("plain text"))
	assert.True(t, errors.Is(err, ErrUnsupportedImage))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewNative(defaultOpts).Optimize(ctx, encodePNG(t, gradient(2, 2), png.DefaultCompression))
	assert.True(t, errors.Is(err, context.Canceled))
}

// fakeRunner records commands and writes canned output to the -outfile/-out path.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []toolexec.Command
	output []byte
	result toolexec.ExecResult
}

func (f *fakeRunner) Run(_ context.Context, cmd toolexec.Command) toolexec.ExecResult {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.result.Err != nil {
		return f.result
	}
	for i, a := range cmd.Args {
		if (a == "-outfile" || a == "-out") && i+1 < len(cmd.Args) && f.output != nil {
			_ = os.WriteFile(cmd.Args[i+1], f.output, 0o644)
		}
	}
	return f.result
}

func TestExternal_JPEGCommand(t *testing.T) {
	src := encodeJPEG(t, gradient(16, 16), 95)
	fake := &fakeRunner{output: []byte("optimized")}

	res, err := NewExternal(defaultOpts, fake).Optimize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []byte("optimized"), res.Data)

	require.Len(t, fake.calls, 1)
	cmd := fake.calls[0]
	assert.Equal(t, CJPEG, cmd.Name)
	assert.Equal(t, []string{"-quality", "70", "-progressive", "-optimize", "-outfile"}, cmd.Args[:5])
}

func TestExternal_BaselineJPEG(t *testing.T) {
	opts := defaultOpts
	opts.Progressive = false
	cmd := NewExternal(opts, nil).command(FormatJPEG, "in.jpg", "out.jpg")
	assert.Contains(t, cmd.Args, "-baseline")
	assert.NotContains(t, cmd.Args, "-progressive")
}

func TestExternal_PNG(t *testing.T) {
	src := encodePNG(t, gradient(16, 16), png.NoCompression)

	t.Run("smaller result is used", func(t *testing.T) {
		fake := &fakeRunner{output: []byte("tiny")}
		res, err := NewExternal(defaultOpts, fake).Optimize(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, []byte("tiny"), res.Data)
		assert.Equal(t, OptiPNG, fake.calls[0].Name)
		assert.Equal(t, "-o3", fake.calls[0].Args[0])
	})

	t.Run("missing output keeps original", func(t *testing.T) {
		fake := &fakeRunner{}
		res, err := NewExternal(defaultOpts, fake).Optimize(context.Background(), src)
		require.NoError(t, err)
		assert.True(t, res.Original)
		assert.Equal(t, src, res.Data)
	})

	t.Run("tool failure is classified", func(t *testing.T) {
		fake := &fakeRunner{result: toolexec.ExecResult{
			Stderr: "Error: Invalid PNG file",
			Err:    errors.New("exit status 1"),
		}}
		_, err := NewExternal(defaultOpts, fake).Optimize(context.Background(), src)
		var te *toolexec.ToolError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, toolexec.FailureInput, te.Kind)
	})
}
