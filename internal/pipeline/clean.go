package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
)

// Clean empties the distribution directory. The directory itself is kept, or
// created when missing. It refuses to run when the directory would contain
// the project root or overlap a source tree.
func Clean(ctx context.Context, env *Env) (*RunStats, error) {
	cfg := env.Cfg
	log := env.Log.Stage(StageClean)
	stats := newStats(StageClean, 0)
	defer timed(stats)()

	distAbs, err := checkedDist(cfg)
	if err != nil {
		return stats, err
	}

	entries, err := os.ReadDir(distAbs)
	switch {
	case os.IsNotExist(err):
		if cfg.DryRun {
			log.Success("[DRY] Would create %s", cfg.Dist)
			return stats, nil
		}
		log.Debug("Creating %s", distAbs)
		return stats, os.MkdirAll(distAbs, 0o755)
	case err != nil:
		return stats, fmt.Errorf("read %s: %w", cfg.Dist, err)
	}

	stats.Total = len(entries)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		path := filepath.Join(distAbs, e.Name())
		if cfg.DryRun {
			log.Success("[DRY] Would remove %s", filepath.Join(cfg.Dist, e.Name()))
			stats.recordWrite(0, 0)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			stats.recordFailure()
			return stats, fmt.Errorf("remove %s: %w", path, err)
		}
		log.Debug("Removed %s", path)
		stats.recordWrite(0, 0)
	}
	log.Info("Emptied %s (%d entries)", cfg.Dist, stats.Written)
	return stats, nil
}

// checkedDist resolves the distribution directory and validates it against
// the project root and source bases.
func checkedDist(cfg *config.Config) (string, error) {
	rootAbs, err := config.ResolveDir(cfg.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	distAbs, err := config.ResolveDir(cfg.Path(cfg.Dist))
	if err != nil {
		return "", fmt.Errorf("resolve dist: %w", err)
	}
	var bases []string
	for _, b := range cfg.SourceBases() {
		abs, err := config.ResolveDir(b)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", b, err)
		}
		bases = append(bases, abs)
	}
	if err := cfg.ValidatePaths(rootAbs, distAbs, bases); err != nil {
		return "", err
	}
	return distAbs, nil
}
