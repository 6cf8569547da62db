package pipeline

import (
	"context"
	"path/filepath"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
	"github.com/AtomWave/AW-converter-2-0/internal/display"
	"github.com/AtomWave/AW-converter-2-0/internal/logging"
	"github.com/AtomWave/AW-converter-2-0/internal/naming"
)

// OptimizeImages recompresses every image matched by the image glob and
// writes it under the distribution directory at the path naming.PlanSource
// computes from its location. When two sources plan the same output, the
// first in path order keeps it and the rest are skipped.
func OptimizeImages(ctx context.Context, env *Env) (*RunStats, error) {
	cfg := env.Cfg
	log := env.Log.Stage(StageOptimizeImages)
	stats := newStats(StageOptimizeImages, 0)
	defer timed(stats)()

	base, glob := cfg.SplitGlob(cfg.ImageGlob)
	sources, err := Discover(ctx, base, glob)
	if err != nil {
		return stats, err
	}
	stats.Total = len(sources)
	if len(sources) == 0 {
		log.Info("No images matched %s", cfg.ImageGlob)
		return stats, nil
	}

	log.Info("Found %d images, backend %s, jpeg quality %d, png level %d",
		len(sources), env.Images.Name(), cfg.JPEGQuality, cfg.PNGLevel)
	if cfg.Progressive && env.Images.Name() == string(config.BackendNative) {
		log.Warn("Native backend writes baseline JPEG; progressive scans need cjpeg")
	}

	jobs := planImages(cfg, log, stats, sources)
	return stats, runJobs(ctx, env, stats, log, jobs, func(ctx context.Context, src Source, data []byte) ([]byte, error) {
		res, err := env.Images.Optimize(ctx, data)
		if err != nil {
			return nil, err
		}
		if res.Original {
			log.Debug("%s: already optimal, copied (%s)", src.Rel, display.FormatBytes(int64(len(data))))
		}
		return res.Data, nil
	})
}

// planImages maps sources to destinations sequentially so collision handling
// does not depend on worker scheduling.
func planImages(cfg *config.Config, log *logging.Logger, stats *RunStats, sources []Source) []job {
	dist := cfg.Path(cfg.Dist)
	resolver := naming.NewCollisionResolver()
	jobs := make([]job, 0, len(sources))

	for _, src := range sources {
		out := naming.PlanSource(src.Rel)
		dest := filepath.Join(dist, filepath.FromSlash(out.Rel()))
		if !insideDir(dest, dist) {
			log.Warn("Skip %s: planned output %s leaves %s", src.Rel, out.Rel(), cfg.Dist)
			stats.recordSkip()
			continue
		}
		if owner, ok := resolver.Claim(src.Rel, out.Rel()); !ok {
			log.Warn("Skip %s: %s is already produced from %s", src.Rel, out.Rel(), owner)
			stats.recordSkip()
			continue
		}
		jobs = append(jobs, job{src: src, dest: dest})
	}
	log.Debug("Planned %d outputs from %d images", resolver.Len(), len(sources))
	return jobs
}
