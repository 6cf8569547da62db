package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
	"github.com/AtomWave/AW-converter-2-0/internal/display"
	"github.com/AtomWave/AW-converter-2-0/internal/imageopt"
	"github.com/AtomWave/AW-converter-2-0/internal/logging"
	"github.com/AtomWave/AW-converter-2-0/internal/manifest"
)

// Stage names as used on the command line and in the dependency graph.
const (
	StageClean          = "clean"
	StageOptimizeImages = "optimizeImages"
	StageOtf2Ttf        = "otf2ttf"
	StageTtf2Woff       = "ttf2woff"
	StageTtf2Woff2      = "ttf2woff2"
)

// Env carries what every stage needs.
type Env struct {
	Cfg      *config.Config
	Log      *logging.Logger
	Images   imageopt.Optimizer
	Manifest *manifest.Recorder // nil unless --manifest is set.
}

// StageFunc runs one stage to completion and reports its statistics. The
// returned stats are non-nil even when err is set.
type StageFunc func(ctx context.Context, env *Env) (*RunStats, error)

// Stages returns every stage keyed by name.
func Stages() map[string]StageFunc {
	return map[string]StageFunc{
		StageClean:          Clean,
		StageOptimizeImages: OptimizeImages,
		StageOtf2Ttf:        Otf2Ttf,
		StageTtf2Woff:       Ttf2Woff,
		StageTtf2Woff2:      Ttf2Woff2,
	}
}

// job is one planned write.
type job struct {
	src  Source
	dest string
}

// forEach runs fn for every item on at most jobs workers. After the first
// failure no further item is started; items already running finish with the
// caller's context and the first error is returned.
func forEach[T any](ctx context.Context, jobs int, items []T, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		item := item
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return fn(ctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// writeOutput writes data to path through a temporary sibling file so a
// failed or interrupted write never leaves a partial output behind.
func writeOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// rootRel returns path relative to the project root with forward slashes,
// or path itself when it lies elsewhere.
func rootRel(cfg *config.Config, path string) string {
	rel, err := filepath.Rel(cfg.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// insideDir reports whether path stays within dir once cleaned.
func insideDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// emit writes one stage output, or logs it under dry-run, and records it in
// stats and the manifest.
func emit(env *Env, stats *RunStats, log *logging.Logger, src Source, dest string, data []byte) error {
	destRel := rootRel(env.Cfg, dest)
	if env.Cfg.DryRun {
		log.Success("[DRY] Would write %s (%s)", destRel, display.FormatBytes(int64(len(data))))
		stats.recordWrite(src.Size, int64(len(data)))
		return nil
	}
	if err := writeOutput(dest, data); err != nil {
		return fmt.Errorf("write %s: %w", destRel, err)
	}
	stats.recordWrite(src.Size, int64(len(data)))
	env.Manifest.Add(manifest.Entry{
		Stage:       stats.Stage,
		Source:      rootRel(env.Cfg, src.Path),
		Output:      destRel,
		InputBytes:  src.Size,
		OutputBytes: int64(len(data)),
		SHA256:      manifest.Digest(data),
	})
	log.Debug("%s -> %s (%s)", src.Rel, destRel, display.FormatBytes(int64(len(data))))
	return nil
}

// runJobs processes planned jobs with convert and logs the stage summary.
func runJobs(ctx context.Context, env *Env, stats *RunStats, log *logging.Logger, jobs []job,
	convert func(ctx context.Context, src Source, data []byte) ([]byte, error),
) error {
	err := forEach(ctx, env.Cfg.Jobs, jobs, func(ctx context.Context, j job) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(j.src.Path)
		if err != nil {
			stats.recordFailure()
			log.Error("Cannot read %s: %v", j.src.Rel, err)
			return fmt.Errorf("read %s: %w", j.src.Rel, err)
		}
		out, err := convert(ctx, j.src, data)
		if err != nil {
			stats.recordFailure()
			log.Error("%s: %v", j.src.Rel, err)
			return fmt.Errorf("%s: %w", j.src.Rel, err)
		}
		if err := emit(env, stats, log, j.src, j.dest, out); err != nil {
			stats.recordFailure()
			log.Error("%v", err)
			return err
		}
		return nil
	})
	logSummary(env.Cfg, log, stats)
	return err
}

// timed sets stats.Duration once the stage returns.
func timed(stats *RunStats) func() {
	start := time.Now()
	return func() { stats.Duration = time.Since(start) }
}

func logSummary(cfg *config.Config, log *logging.Logger, stats *RunStats) {
	log.Info("Done: %d written, %d skipped, %d failed of %d", stats.Written, stats.Skipped, stats.Failed, stats.Total)
	if cfg.DryRun || stats.Written == 0 {
		return
	}
	saved := stats.SpaceSaved()
	if saved >= 0 {
		log.Success("Space saved: %s (input %s -> output %s)",
			display.FormatBytes(saved),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes))
	} else {
		log.Info("Output grew by %s (input %s -> output %s)",
			display.FormatBytes(-saved),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes))
	}
}
