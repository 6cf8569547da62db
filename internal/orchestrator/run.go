package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Task runs one stage.
type Task func(ctx context.Context) error

// State is the outcome of one stage in a run.
type State int

const (
	Pending State = iota
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Logger is the minimal logging interface needed by Run.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// Outcome records how one stage of a run ended.
type Outcome struct {
	Stage    string
	State    State
	Err      error
	Duration time.Duration
}

// Report lists the outcome of every member stage in declaration order.
type Report struct {
	Target   string
	Outcomes []Outcome
}

// Failed reports whether any stage failed.
func (r Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.State == Failed {
			return true
		}
	}
	return false
}

// Run executes target. Each member stage waits for the members it runs
// after; if any of them did not finish successfully the stage is skipped.
// A failure never interrupts running siblings. The returned error combines
// every stage error, plus the context error when the run was interrupted.
func (g *Graph) Run(ctx context.Context, target string, tasks map[string]Task, log Logger) (Report, error) {
	report := Report{Target: target}
	members, err := g.Expand(target)
	if err != nil {
		return report, err
	}
	for _, m := range members {
		if tasks[m] == nil {
			return report, fmt.Errorf("no task registered for stage %q", m)
		}
	}

	inRun := make(map[string]bool, len(members))
	done := make(map[string]chan struct{}, len(members))
	for _, m := range members {
		inRun[m] = true
		done[m] = make(chan struct{})
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[string]*Outcome, len(members))
		errs     error
	)
	for _, m := range members {
		outcomes[m] = &Outcome{Stage: m}
	}
	finish := func(name string, st State, err error, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		o := outcomes[name]
		o.State, o.Err, o.Duration = st, err, d
		if err != nil && st == Failed {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	stateOf := func(name string) State {
		mu.Lock()
		defer mu.Unlock()
		return outcomes[name].State
	}

	var eg errgroup.Group
	for _, m := range members {
		m := m
		eg.Go(func() error {
			defer close(done[m])
			for _, dep := range g.after[m] {
				if !inRun[dep] {
					continue
				}
				<-done[dep]
				if st := stateOf(dep); st != Done {
					log.Warn("Skipping %s: %s %s", m, dep, st)
					finish(m, Skipped, nil, 0)
					return nil
				}
			}
			if err := ctx.Err(); err != nil {
				finish(m, Skipped, err, 0)
				return nil
			}

			log.Info("Starting %s", m)
			start := time.Now()
			err := tasks[m](ctx)
			elapsed := time.Since(start)
			if err != nil {
				log.Error("%s failed after %s: %v", m, elapsed.Round(time.Millisecond), err)
				finish(m, Failed, err, elapsed)
				return nil
			}
			log.Info("Finished %s in %s", m, elapsed.Round(time.Millisecond))
			finish(m, Done, nil, elapsed)
			return nil
		})
	}
	_ = eg.Wait()

	for _, m := range members {
		report.Outcomes = append(report.Outcomes, *outcomes[m])
	}
	if cerr := ctx.Err(); cerr != nil && !errors.Is(errs, cerr) {
		errs = multierr.Append(errs, cerr)
	}
	return report, errs
}
