package config

// This file binds Config fields to command-line flags.
// Flags are grouped into layout, image, behavior and display.
// Negated flags (e.g. --no-progressive) are applied after parsing so Config defaults hold unless set.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Flags binds a Config to a pflag.FlagSet. Call [Flags.Apply] after the flag
// set has been parsed.
type Flags struct {
	cfg     *Config
	negated negatedFlags
}

// negatedFlags holds boolean flags that are applied after Parse.
type negatedFlags struct {
	noProgressive bool
	forceColor    bool
	noColor       bool
}

// BindFlags registers every configuration flag on fs, writing into cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) *Flags {
	f := &Flags{cfg: cfg}
	defineLayoutFlags(fs, cfg)
	defineImageFlags(fs, cfg, &f.negated)
	defineBehaviorFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &f.negated)
	return f
}

// defineLayoutFlags registers -C/--root, --dist, the three globs, --font-out and --font-dist.
func defineLayoutFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.Root, "root", "C", cfg.Root, "Project root; relative paths and globs resolve against it")
	fs.StringVar(&cfg.Dist, "dist", cfg.Dist, "Distribution directory (emptied by clean)")
	fs.StringVar(&cfg.ImageGlob, "images", cfg.ImageGlob, "Glob selecting raster images")
	fs.StringVar(&cfg.OTFGlob, "otf", cfg.OTFGlob, "Glob selecting OpenType fonts to convert")
	fs.StringVar(&cfg.TTFGlob, "ttf", cfg.TTFGlob, "Glob selecting TrueType fonts to package")
	fs.StringVar(&cfg.FontOut, "font-out", cfg.FontOut, "Directory receiving converted .ttf files")
	fs.StringVar(&cfg.FontDist, "font-dist", cfg.FontDist, "Directory receiving .woff/.woff2 (default <dist>/font)")
}

// defineImageFlags registers --jpeg-quality, --no-progressive, --png-level, --image-backend.
func defineImageFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality, 1-100")
	fs.BoolVar(&n.noProgressive, "no-progressive", false, "Write baseline instead of progressive JPEG")
	fs.IntVar(&cfg.PNGLevel, "png-level", cfg.PNGLevel, "PNG optimization level, 0-7")
	fs.Var(&imageBackendValue{&cfg.ImageBackend}, "image-backend", "Image backend: auto | native | external")
}

// defineBehaviorFlags registers -j/--jobs, -d/--dry-run, --manifest.
func defineBehaviorFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "Files processed concurrently per stage")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "d", false, "Preview only; do not write any file")
	fs.BoolVar(&cfg.Manifest, "manifest", false, "Write manifest.json into the distribution directory")
}

// defineDisplayFlags registers --color, --no-color, -v/--verbose, -l/--log.
func defineDisplayFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	fs.StringVarP(&cfg.LogFile, "log", "l", "", "Append logs to file")
}

// Apply copies negated flag values into the Config and normalizes paths.
func (f *Flags) Apply() {
	cfg := f.cfg
	if f.negated.noProgressive {
		cfg.Progressive = false
	}
	if f.negated.noColor {
		cfg.ColorMode = ColorNever
	} else if f.negated.forceColor {
		cfg.ColorMode = ColorAlways
	}
	cfg.Root = NormalizeDirArg(cfg.Root)
	cfg.Dist = NormalizeDirArg(cfg.Dist)
	cfg.FontOut = NormalizeDirArg(cfg.FontOut)
	cfg.FontDist = NormalizeDirArg(cfg.FontDist)
	if cfg.Root == "" {
		cfg.Root = "."
	}
}

// pflag.Value adapter so ImageBackend can be used with fs.Var.

type imageBackendValue struct{ p *ImageBackend }

func (v *imageBackendValue) String() string { return string(*v.p) }
func (v *imageBackendValue) Type() string   { return "backend" }
func (v *imageBackendValue) Set(s string) error {
	switch strings.ToLower(s) {
	case "auto":
		*v.p = BackendAuto
	case "native":
		*v.p = BackendNative
	case "external":
		*v.p = BackendExternal
	default:
		return fmt.Errorf("invalid image backend %q (use 'auto', 'native' or 'external')", s)
	}
	return nil
}
