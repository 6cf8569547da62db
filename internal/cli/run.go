package cli

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AtomWave/AW-converter-2-0/internal/display"
	"github.com/AtomWave/AW-converter-2-0/internal/manifest"
	"github.com/AtomWave/AW-converter-2-0/internal/orchestrator"
	"github.com/AtomWave/AW-converter-2-0/internal/pipeline"
)

// runTarget wires the pipeline stages into the orchestrator, runs target,
// prints the stage summary and, with --manifest, writes the manifest.
func (s *session) runTarget(ctx context.Context, target string) error {
	cfg := &s.cfg
	members, err := graph.Expand(target)
	if err != nil {
		return err
	}

	start := time.Now()
	env := &pipeline.Env{Cfg: cfg, Log: s.log}
	if slices.Contains(members, pipeline.StageOptimizeImages) {
		opt, err := newOptimizer(cfg)
		if err != nil {
			return err
		}
		env.Images = opt
	}
	if cfg.Manifest && !cfg.DryRun {
		env.Manifest = manifest.NewRecorder(target, start)
		env.Log = s.log.With(zap.String("build", env.Manifest.BuildID()))
	}

	log := env.Log
	log.Info("Target %s: %v", target, members)
	if cfg.DryRun {
		log.Warn("DRY RUN")
	}

	var mu sync.Mutex
	results := make(map[string]*pipeline.RunStats)
	tasks := make(map[string]orchestrator.Task)
	for name, stage := range stages() {
		name, stage := name, stage
		tasks[name] = func(ctx context.Context) error {
			st, err := stage(ctx, env)
			mu.Lock()
			results[name] = st
			mu.Unlock()
			return err
		}
	}

	report, runErr := graph.Run(ctx, target, tasks, log)
	display.PrintSummary(s.out, summaryRows(report, results))

	if runErr != nil {
		log.Error("%s failed", target)
		return runErr
	}
	if env.Manifest != nil {
		path, err := env.Manifest.WriteFile(cfg.Path(cfg.Dist), time.Now())
		if err != nil {
			return err
		}
		log.Info("Manifest: %s (%d entries)", path, env.Manifest.Len())
	}
	log.Success("%s finished in %s", target, display.FormatDuration(time.Since(start)))
	return nil
}

func summaryRows(report orchestrator.Report, results map[string]*pipeline.RunStats) []display.SummaryRow {
	rows := make([]display.SummaryRow, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		row := display.SummaryRow{Stage: o.Stage, State: o.State.String(), Duration: o.Duration}
		if st := results[o.Stage]; st != nil {
			row.Files = st.Total
			row.Written = st.Written
			row.Skipped = st.Skipped
			row.Failed = st.Failed
			row.Saved = st.SpaceSaved()
		}
		rows = append(rows, row)
	}
	return rows
}

