// Package config holds runtime configuration: defaults, CLI flag binding, and
// validation. Defaults reproduce the layout of the original asset build
// (image/, font/, dist/) so an unconfigured run behaves the same.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// --- Enum types for validated string fields ---

// ImageBackend selects how raster images are recompressed.
type ImageBackend string

const (
	BackendAuto     ImageBackend = "auto"     // external when cjpeg and optipng are on PATH, else native (default).
	BackendNative   ImageBackend = "native"   // Pure Go encoders.
	BackendExternal ImageBackend = "external" // mozjpeg cjpeg + optipng.
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// ErrUnsafeDist is returned when the distribution directory would swallow the
// project root or a source tree if it were emptied.
var ErrUnsafeDist = errors.New("unsafe distribution directory")

// Config holds all runtime settings. It is populated by [DefaultConfig],
// mutated by flag binding, and passed by pointer to the orchestrator and
// stages. Relative paths are resolved against Root by [Config.Path].
type Config struct {
	// Layout.
	Root      string // Project root. Default: ".".
	Dist      string // Distribution directory. Default: "dist".
	ImageGlob string // Default: "image/**/*.{jpg,jpeg,png}".
	OTFGlob   string // Default: "font/**/*.otf".
	TTFGlob   string // Default: "font/**/*.ttf".
	FontOut   string // Where OTF→TTF writes. Default: "font".
	FontDist  string // Where WOFF/WOFF2 land. Empty means <Dist>/font.

	// Image settings.
	JPEGQuality  int          // Default: 70.
	Progressive  bool         // Default: true. Cleared by --no-progressive.
	PNGLevel     int          // optipng -o level, 0..7. Default: 3.
	ImageBackend ImageBackend // Default: "auto".

	// Behavior.
	Jobs     int  // Per-stage worker count. Default: number of CPUs.
	DryRun   bool // Plan and log only.
	Manifest bool // Write <Dist>/manifest.json after the run.

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.
}

// DefaultConfig returns a Config matching the original asset layout.
func DefaultConfig() Config {
	return Config{
		Root:         ".",
		Dist:         "dist",
		ImageGlob:    "image/**/*.{jpg,jpeg,png}",
		OTFGlob:      "font/**/*.otf",
		TTFGlob:      "font/**/*.ttf",
		FontOut:      "font",
		JPEGQuality:  70,
		Progressive:  true,
		PNGLevel:     3,
		ImageBackend: BackendAuto,
		Jobs:         runtime.NumCPU(),
		ColorMode:    ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Path resolves p against Root unless it is already absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// SplitGlob separates a slash-separated glob pattern into the filesystem
// directory it is rooted at, resolved against Root, and the pattern relative
// to that directory. Root is joined after the split so that glob
// metacharacters in the project path stay literal.
func (c *Config) SplitGlob(pattern string) (dir, rel string) {
	base, rel := doublestar.SplitPattern(pattern)
	return c.Path(base), rel
}

// FontDistDir returns the directory WOFF and WOFF2 outputs are written to.
func (c *Config) FontDistDir() string {
	if c.FontDist != "" {
		return c.Path(c.FontDist)
	}
	return filepath.Join(c.Path(c.Dist), "font")
}

// SourceBases returns the literal base directories of the three source globs,
// resolved against Root.
func (c *Config) SourceBases() []string {
	var bases []string
	seen := make(map[string]bool)
	for _, g := range []string{c.ImageGlob, c.OTFGlob, c.TTFGlob} {
		base, _ := c.SplitGlob(g)
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	return bases
}

// Validate checks enum fields, numeric ranges and glob syntax.
func (c *Config) Validate() error {
	switch c.ImageBackend {
	case BackendAuto, BackendNative, BackendExternal:
		// valid
	default:
		return errors.New("invalid image backend (use 'auto', 'native' or 'external')")
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100 (got %d)", c.JPEGQuality)
	}
	if c.PNGLevel < 0 || c.PNGLevel > 7 {
		return fmt.Errorf("png level must be between 0 and 7 (got %d)", c.PNGLevel)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1 (got %d)", c.Jobs)
	}
	if strings.TrimSpace(c.Dist) == "" {
		return errors.New("distribution directory must not be empty")
	}
	if strings.TrimSpace(c.FontOut) == "" {
		return errors.New("font output directory must not be empty")
	}

	for name, g := range map[string]string{"images": c.ImageGlob, "otf": c.OTFGlob, "ttf": c.TTFGlob} {
		if g == "" || !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid %s glob %q", name, g)
		}
	}
	return nil
}

// ValidatePaths ensures that emptying distAbs cannot delete the project root
// or a source tree, and that the distribution directory does not sit inside a
// source tree where discovery would pick up its own output. All arguments
// must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(rootAbs, distAbs string, sourceAbs []string) error {
	if within(rootAbs, distAbs) {
		return fmt.Errorf("%w: %s contains the project root", ErrUnsafeDist, distAbs)
	}
	for _, src := range sourceAbs {
		if within(src, distAbs) || within(distAbs, src) {
			return fmt.Errorf("%w: %s overlaps source directory %s", ErrUnsafeDist, distAbs, src)
		}
	}
	return nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	sep := string(filepath.Separator)
	return path == dir || strings.HasPrefix(path+sep, strings.TrimSuffix(dir, sep)+sep)
}

// ResolveDir returns the absolute path of p with symlinks resolved. A path
// that does not exist yet is resolved through its nearest existing ancestor.
func ResolveDir(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var missing []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}
