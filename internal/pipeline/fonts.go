package pipeline

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/AtomWave/AW-converter-2-0/internal/fontconv"
	"github.com/AtomWave/AW-converter-2-0/internal/logging"
)

// Otf2Ttf converts every font matched by the OTF glob to TrueType outlines and
// writes <font-out>/<rel>.ttf, keeping subdirectories.
func Otf2Ttf(ctx context.Context, env *Env) (*RunStats, error) {
	log := env.Log.Stage(StageOtf2Ttf)
	return fontStage(ctx, env, log, StageOtf2Ttf, env.Cfg.OTFGlob, env.Cfg.Path(env.Cfg.FontOut), ".ttf",
		func(src Source, data []byte) ([]byte, error) {
			out, converted, err := fontconv.ToTTF(data)
			if err != nil {
				return nil, err
			}
			if !converted {
				log.Debug("%s already has TrueType outlines, copied", src.Rel)
			}
			return out, nil
		})
}

// Ttf2Woff wraps every font matched by the TTF glob as WOFF 1.0 in the font
// dist directory.
func Ttf2Woff(ctx context.Context, env *Env) (*RunStats, error) {
	log := env.Log.Stage(StageTtf2Woff)
	return fontStage(ctx, env, log, StageTtf2Woff, env.Cfg.TTFGlob, env.Cfg.FontDistDir(), ".woff",
		func(_ Source, data []byte) ([]byte, error) { return fontconv.ToWOFF(data) })
}

// Ttf2Woff2 wraps every font matched by the TTF glob as WOFF 2.0 in the font
// dist directory.
func Ttf2Woff2(ctx context.Context, env *Env) (*RunStats, error) {
	log := env.Log.Stage(StageTtf2Woff2)
	return fontStage(ctx, env, log, StageTtf2Woff2, env.Cfg.TTFGlob, env.Cfg.FontDistDir(), ".woff2",
		func(_ Source, data []byte) ([]byte, error) { return fontconv.ToWOFF2(data) })
}

// fontStage discovers pattern and writes each match to outDir with its
// extension replaced by ext.
func fontStage(ctx context.Context, env *Env, log *logging.Logger, name, pattern, outDir, ext string,
	convert func(src Source, data []byte) ([]byte, error),
) (*RunStats, error) {
	stats := newStats(name, 0)
	defer timed(stats)()

	base, glob := env.Cfg.SplitGlob(pattern)
	sources, err := Discover(ctx, base, glob)
	if err != nil {
		return stats, err
	}
	stats.Total = len(sources)
	if len(sources) == 0 {
		log.Info("No fonts matched %s", pattern)
		return stats, nil
	}
	log.Info("Found %d fonts", len(sources))

	jobs := make([]job, 0, len(sources))
	for _, src := range sources {
		rel := strings.TrimSuffix(src.Rel, path.Ext(src.Rel)) + ext
		jobs = append(jobs, job{src: src, dest: filepath.Join(outDir, filepath.FromSlash(rel))})
	}
	return stats, runJobs(ctx, env, stats, log, jobs, func(_ context.Context, src Source, data []byte) ([]byte, error) {
		return convert(src, data)
	})
}
