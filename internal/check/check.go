// Package check provides system diagnostics (the check command) and the
// pre-pipeline image backend resolution (ResolveBackend) for cjpeg and
// optipng.
package check

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
	"github.com/AtomWave/AW-converter-2-0/internal/imageopt"
	"github.com/AtomWave/AW-converter-2-0/internal/toolexec"
)

// ErrToolNotFound is returned by ResolveBackend when the external backend is
// requested but cjpeg or optipng is missing.
var ErrToolNotFound = errors.New("image tool not found on PATH")

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// tool describes one external codec and how to ask for its version.
type tool struct {
	name        string
	versionFlag string
	purpose     string
}

var tools = []tool{
	{imageopt.CJPEG, "-version", "JPEG (mozjpeg)"},
	{imageopt.OptiPNG, "-v", "PNG"},
}

// Injectable for tests.
var (
	available = toolexec.Available
	version   = toolexec.Version
)

// RunCheck prints the resolved configuration, native codec support, and the
// availability of each external tool. It is informational only and does not
// stop on failure.
func RunCheck(ctx context.Context, cfg *config.Config, log Logger) {
	log.Info("=== System Check ===")

	checkConfig(cfg, log)
	checkNative(log)
	for _, t := range tools {
		checkTool(ctx, t, log)
	}

	backend, err := ResolveBackend(cfg)
	if err != nil {
		log.Error("Image backend %s: %v", cfg.ImageBackend, err)
		return
	}
	log.Success("Image backend: %s", backend)
}

// checkConfig logs the resolved layout and image settings.
func checkConfig(cfg *config.Config, log Logger) {
	log.Info("Root: %s", cfg.Root)
	log.Info("Images: %s -> %s", cfg.ImageGlob, cfg.Dist)
	log.Info("Fonts: %s -> %s, %s -> %s", cfg.OTFGlob, cfg.FontOut, cfg.TTFGlob, cfg.FontDistDir())
	log.Info("JPEG quality %d (progressive: %t), PNG level %d, jobs %d",
		cfg.JPEGQuality, cfg.Progressive, cfg.PNGLevel, cfg.Jobs)
}

// checkNative confirms the built-in decoders are registered.
func checkNative(log Logger) {
	var missing []string
	for _, f := range []string{"jpeg", "png"} {
		if !formatRegistered(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		log.Error("Native codecs missing: %s", strings.Join(missing, ", "))
		return
	}
	log.Success("Native codecs: jpeg, png (baseline JPEG only)")
}

// formatRegistered decodes a config header for the format's magic bytes; an
// unregistered format fails with image.ErrFormat.
func formatRegistered(name string) bool {
	magic := map[string]string{
		"jpeg": "\xff\xd8",
		"png":  "\x89PNG\r\n\x1a\n",
	}[name]
	_, _, err := image.DecodeConfig(strings.NewReader(magic))
	return !errors.Is(err, image.ErrFormat)
}

// checkTool verifies a tool is on PATH and logs its version string.
func checkTool(ctx context.Context, t tool, log Logger) {
	if !available(t.name) {
		log.Warn("%s not found (%s optimization falls back to native)", t.name, t.purpose)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	v, err := version(ctx, t.name, t.versionFlag)
	if err != nil {
		log.Warn("%s found but %s failed: %v", t.name, t.versionFlag, err)
		return
	}
	log.Success("%s: %s", t.name, v)
}

// ResolveBackend turns the configured image backend into a concrete one:
// auto selects external when every tool is on PATH and native otherwise.
// An explicit external backend with a missing tool returns ErrToolNotFound.
func ResolveBackend(cfg *config.Config) (config.ImageBackend, error) {
	var missing []string
	for _, t := range tools {
		if !available(t.name) {
			missing = append(missing, t.name)
		}
	}

	switch cfg.ImageBackend {
	case config.BackendNative:
		return config.BackendNative, nil
	case config.BackendExternal:
		if len(missing) > 0 {
			return "", fmt.Errorf("%w: %s", ErrToolNotFound, strings.Join(missing, ", "))
		}
		return config.BackendExternal, nil
	default:
		if len(missing) > 0 {
			return config.BackendNative, nil
		}
		return config.BackendExternal, nil
	}
}

// NewOptimizer resolves the backend and builds the matching optimizer.
func NewOptimizer(cfg *config.Config, runner toolexec.Runner) (imageopt.Optimizer, error) {
	backend, err := ResolveBackend(cfg)
	if err != nil {
		return nil, err
	}
	opts := imageopt.Options{
		JPEGQuality: cfg.JPEGQuality,
		Progressive: cfg.Progressive,
		PNGLevel:    cfg.PNGLevel,
	}
	if backend == config.BackendExternal {
		return imageopt.NewExternal(opts, runner), nil
	}
	return imageopt.NewNative(opts), nil
}
