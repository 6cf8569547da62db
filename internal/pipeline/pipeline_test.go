package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
	"github.com/AtomWave/AW-converter-2-0/internal/fontconv"
	"github.com/AtomWave/AW-converter-2-0/internal/imageopt"
	"github.com/AtomWave/AW-converter-2-0/internal/logging"
	"github.com/AtomWave/AW-converter-2-0/internal/manifest"
)

// --- helpers ---

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func touch(t *testing.T, dir, rel string) string {
	t.Helper()
	return write(t, dir, rel, []byte("x"))
}

func write(t *testing.T, dir, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func rels(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Rel
	}
	return out
}

func testEnv(t *testing.T) (*Env, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Root = root
	cfg.Jobs = 2
	return &Env{
		Cfg:    &cfg,
		Log:    logging.Nop(),
		Images: imageopt.NewNative(imageopt.Options{JPEGQuality: 70, Progressive: true, PNGLevel: 3}),
	}, root
}

func jpegFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{uint8((x / 8) * 60), 20, 200, 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

// --- Discover tests ---

func TestDiscover_MatchesBraceGlob(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image/a.jpg")
	touch(t, dir, "image/b.jpeg")
	touch(t, dir, "image/c.png")
	touch(t, dir, "image/d.gif")
	touch(t, dir, "image/readme.txt")

	got, err := Discover(context.Background(), filepath.Join(dir, "image"), "**/*.{jpg,jpeg,png}")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpeg", "c.png"}, rels(got))
}

func TestDiscover_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "font/z/Z-Bold.otf")
	touch(t, dir, "font/a/A-Regular.otf")
	touch(t, dir, "font/Root.otf")
	touch(t, dir, "font/a/deep/er/Deep.otf")

	got, err := Discover(context.Background(), filepath.Join(dir, "font"), "**/*.otf")
	require.NoError(t, err)
	assert.Equal(t, []string{"Root.otf", "a/A-Regular.otf", "a/deep/er/Deep.otf", "z/Z-Bold.otf"}, rels(got))
	for _, s := range got {
		assert.Equal(t, int64(1), s.Size)
		assert.FileExists(t, s.Path)
	}
}

func TestDiscover_SkipsDotEntries(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image/ok.png")
	touch(t, dir, "image/.hidden.png")
	touch(t, dir, "image/.cache/inner.png")

	got, err := Discover(context.Background(), filepath.Join(dir, "image"), "**/*.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.png"}, rels(got))
}

func TestDiscover_CaseSensitiveExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image/LOUD.JPG")
	touch(t, dir, "image/quiet.jpg")

	got, err := Discover(context.Background(), filepath.Join(dir, "image"), "**/*.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet.jpg"}, rels(got))
}

func TestDiscover_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "image"), 0o755))

	got, err := Discover(context.Background(), filepath.Join(dir, "image"), "**/*.png")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscover_MissingBase(t *testing.T) {
	dir := t.TempDir()
	_, err := Discover(context.Background(), filepath.Join(dir, "image"), "**/*.png")
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestDiscover_FollowsFileSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := touch(t, dir, "shared/real.png")
	touch(t, dir, "shared/nested/deep.png")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "image"), 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "image", "linked.png")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "shared", "nested"), filepath.Join(dir, "image", "dirlink")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.png"), filepath.Join(dir, "image", "dangling.png")))

	got, err := Discover(context.Background(), filepath.Join(dir, "image"), "**/*.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"linked.png"}, rels(got))
	assert.Equal(t, int64(1), got[0].Size)
}

func TestDiscover_BaseDirIsLiteral(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site[v2]", "{a,b}")
	touch(t, dir, "font/a/X.ttf")

	got, err := Discover(context.Background(), filepath.Join(dir, "font"), "**/*.ttf")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/X.ttf"}, rels(got))
}

func TestDiscover_Canceled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image/a.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, filepath.Join(dir, "image"), "**/*.png")
	assert.ErrorIs(t, err, context.Canceled)
}

// --- worker pool ---

func TestForEach_StopsAfterFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	var ran []int

	err := forEach(context.Background(), 1, []int{0, 1, 2, 3, 4}, func(_ context.Context, i int) error {
		mu.Lock()
		ran = append(ran, i)
		mu.Unlock()
		if i == 1 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0, 1}, ran)
}

func TestForEach_RunsAll(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	err := forEach(context.Background(), 4, []int{1, 2, 3, 4, 5, 6, 7, 8}, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 8)
}

func TestForEach_ReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := forEach(ctx, 2, []int{1, 2}, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// --- output helpers ---

func TestWriteOutput_LeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a", "b", "out.bin")
	require.NoError(t, writeOutput(dest, []byte("payload")))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, []string{"a/b/out.bin"}, listFiles(t, dir))
}

func TestInsideDir(t *testing.T) {
	dist := filepath.Join("root", "dist")
	assert.True(t, insideDir(filepath.Join(dist, "chair", "x.jpg"), dist))
	assert.True(t, insideDir(filepath.Join(dist, "..-x.jpg"), dist))
	assert.False(t, insideDir(filepath.Join(dist, "..", "x.jpg"), dist))
	assert.False(t, insideDir(filepath.Join("root", "elsewhere"), dist))
}

// --- Clean ---

func TestClean_EmptiesButKeepsDir(t *testing.T) {
	env, root := testEnv(t)
	touch(t, root, "dist/old.css")
	touch(t, root, "dist/chair/chair-furniture-1.jpg")

	stats, err := Clean(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Written)

	entries, err := os.ReadDir(filepath.Join(root, "dist"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClean_CreatesMissingDir(t *testing.T) {
	env, root := testEnv(t)
	_, err := Clean(context.Background(), env)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "dist"))
}

func TestClean_DryRunKeepsFiles(t *testing.T) {
	env, root := testEnv(t)
	env.Cfg.DryRun = true
	touch(t, root, "dist/old.css")

	_, err := Clean(context.Background(), env)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "dist", "old.css"))
}

func TestClean_RefusesUnsafeDist(t *testing.T) {
	for _, dist := range []string{".", "image", "image/sub"} {
		t.Run(dist, func(t *testing.T) {
			env, root := testEnv(t)
			env.Cfg.Dist = dist
			keep := touch(t, root, "image/keep.png")

			_, err := Clean(context.Background(), env)
			assert.ErrorIs(t, err, config.ErrUnsafeDist)
			assert.FileExists(t, keep)
		})
	}
}

// --- OptimizeImages ---

func TestOptimizeImages_WritesPlannedPaths(t *testing.T) {
	env, root := testEnv(t)
	env.Manifest = manifest.NewRecorder("optimizeImages", testStart)
	write(t, root, "image/furniture/chair-1.jpg", jpegFixture(t))
	write(t, root, "image/icons/sprite.png", pngFixture(t))

	stats, err := OptimizeImages(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Written)
	assert.Equal(t, []string{"chair/chair-furniture-1.jpg", "sprite/sprite-icons.png"},
		listFiles(t, filepath.Join(root, "dist")))

	m := env.Manifest.Snapshot(testStart)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, "dist/chair/chair-furniture-1.jpg", m.Entries[0].Output)
	assert.Equal(t, "image/furniture/chair-1.jpg", m.Entries[0].Source)
}

func TestOptimizeImages_RootLevelImage(t *testing.T) {
	env, root := testEnv(t)
	write(t, root, "image/logo-2.png", pngFixture(t))

	_, err := OptimizeImages(context.Background(), env)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "dist", "logo", "logo-.-2.png"))
}

func TestOptimizeImages_CollisionFirstWins(t *testing.T) {
	env, root := testEnv(t)
	data := pngFixture(t)
	write(t, root, "image/a/x-1.png", data)
	write(t, root, "image/a/sub/x-1.png", data)

	stats, err := OptimizeImages(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []string{"x/x-a-1.png"}, listFiles(t, filepath.Join(root, "dist")))
}

func TestOptimizeImages_NoImages(t *testing.T) {
	env, root := testEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "image"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist"), 0o755))

	stats, err := OptimizeImages(context.Background(), env)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, listFiles(t, filepath.Join(root, "dist")))
}

func TestOptimizeImages_MissingSourceDir(t *testing.T) {
	env, _ := testEnv(t)
	_, err := OptimizeImages(context.Background(), env)
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestOptimizeImages_DryRunWritesNothing(t *testing.T) {
	env, root := testEnv(t)
	env.Cfg.DryRun = true
	write(t, root, "image/furniture/chair-1.jpg", jpegFixture(t))

	stats, err := OptimizeImages(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)
	assert.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestOptimizeImages_CorruptImageFailsStage(t *testing.T) {
	env, root := testEnv(t)
	write(t, root, "image/broken.png", []byte("not an image at all"))

	stats, err := OptimizeImages(context.Background(), env)
	require.Error(t, err)
	assert.ErrorIs(t, err, imageopt.ErrUnsupportedImage)
	assert.Equal(t, 1, stats.Failed)
}

// --- fonts ---

func TestFonts_EndToEnd(t *testing.T) {
	env, root := testEnv(t)
	env.Manifest = manifest.NewRecorder("fonts", testStart)
	write(t, root, "font/sub/Go.otf", goregular.TTF)

	stats, err := Otf2Ttf(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)
	assert.FileExists(t, filepath.Join(root, "font", "sub", "Go.ttf"))

	_, err = Ttf2Woff(context.Background(), env)
	require.NoError(t, err)
	_, err = Ttf2Woff2(context.Background(), env)
	require.NoError(t, err)

	woff, err := os.ReadFile(filepath.Join(root, "dist", "font", "sub", "Go.woff"))
	require.NoError(t, err)
	f, err := fontconv.DecodeWOFF(woff)
	require.NoError(t, err)
	assert.True(t, f.Has("glyf"))

	woff2, err := os.ReadFile(filepath.Join(root, "dist", "font", "sub", "Go.woff2"))
	require.NoError(t, err)
	f2, err := fontconv.DecodeWOFF2(woff2)
	require.NoError(t, err)
	assert.True(t, f2.Has("glyf"))

	outputs := map[string]bool{}
	for _, e := range env.Manifest.Snapshot(testStart).Entries {
		outputs[e.Output] = true
	}
	assert.True(t, outputs["font/sub/Go.ttf"])
	assert.True(t, outputs["dist/font/sub/Go.woff"])
	assert.True(t, outputs["dist/font/sub/Go.woff2"])
}

func TestOtf2Ttf_ConvertsCFFOutlines(t *testing.T) {
	env, root := testEnv(t)
	data, err := os.ReadFile("testdata/CFFTest.otf")
	require.NoError(t, err)
	write(t, root, "font/CFFTest.otf", data)

	stats, err := Otf2Ttf(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)

	out, err := os.ReadFile(filepath.Join(root, "font", "CFFTest.ttf"))
	require.NoError(t, err)
	f, err := fontconv.Parse(out)
	require.NoError(t, err)
	assert.False(t, f.HasCFF())
	assert.True(t, f.Has("glyf"))

	_, err = Ttf2Woff2(context.Background(), env)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "dist", "font", "CFFTest.woff2"))
}

func TestFonts_RootWithGlobMetacharacters(t *testing.T) {
	env, _ := testEnv(t)
	root := filepath.Join(t.TempDir(), "site[v2]")
	env.Cfg.Root = root
	write(t, root, "font/a/X.ttf", goregular.TTF)

	stats, err := Ttf2Woff(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)
	assert.FileExists(t, filepath.Join(root, "dist", "font", "a", "X.woff"))
}

func TestFonts_NoSources(t *testing.T) {
	env, root := testEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "font"), 0o755))

	for _, stage := range []StageFunc{Otf2Ttf, Ttf2Woff, Ttf2Woff2} {
		stats, err := stage(context.Background(), env)
		require.NoError(t, err)
		assert.Zero(t, stats.Written)
	}
	assert.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestFonts_CustomFontDist(t *testing.T) {
	env, root := testEnv(t)
	env.Cfg.FontDist = "public/fonts"
	write(t, root, "font/Go.ttf", goregular.TTF)

	_, err := Ttf2Woff(context.Background(), env)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "public", "fonts", "Go.woff"))
}

func TestFonts_CorruptFontFailsStage(t *testing.T) {
	env, root := testEnv(t)
	write(t, root, "font/Bad.ttf", []byte("definitely not a font"))
	write(t, root, "font/Go.ttf", goregular.TTF)
	env.Cfg.Jobs = 1

	stats, err := Ttf2Woff2(context.Background(), env)
	require.Error(t, err)
	assert.ErrorIs(t, err, fontconv.ErrUnsupportedFont)
	assert.Equal(t, 1, stats.Failed)
	assert.True(t, strings.HasPrefix(err.Error(), "Bad.ttf"))
}

// --- Analyze ---

func TestAnalyze_PrintsPlannedOutputs(t *testing.T) {
	env, root := testEnv(t)
	write(t, root, "image/furniture/chair-1.jpg", jpegFixture(t))
	write(t, root, "image/broken.png", []byte("junk"))

	var buf bytes.Buffer
	require.NoError(t, Analyze(context.Background(), env, &buf))
	out := buf.String()
	assert.Contains(t, out, "furniture/chair-1.jpg")
	assert.Contains(t, out, "chair/chair-furniture-1.jpg")
	assert.Contains(t, out, "64x48")
	assert.NotContains(t, out, "broken.png")
}

func TestComputeStats_FlagsHighOutliers(t *testing.T) {
	b := computeStats([]float64{1, 1.1, 1.2, 1.3, 1.4, 9})
	require.True(t, b.valid)
	assert.Equal(t, "", b.classify(1.2))
	assert.Equal(t, "extreme", b.classify(9))
	assert.Equal(t, "", b.classify(0.01))
}

func TestComputeStats_TooFewValues(t *testing.T) {
	b := computeStats([]float64{1, 2, 3})
	assert.False(t, b.valid)
	assert.Equal(t, "", b.classify(100))
}

// --- RunStats ---

func TestRunStats_SpaceSaved(t *testing.T) {
	s := RunStats{TotalInputBytes: 1000, TotalOutputBytes: 600}
	assert.Equal(t, int64(400), s.SpaceSaved())

	s2 := RunStats{TotalInputBytes: 100, TotalOutputBytes: 150}
	assert.Equal(t, int64(-50), s2.SpaceSaved())
}

func TestRunStats_ConcurrentRecords(t *testing.T) {
	s := newStats("x", 100)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.recordWrite(10, 4)
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, s.Written)
	assert.Equal(t, int64(600), s.SpaceSaved())
}
