package pipeline

import (
	"sync"
	"time"
)

// RunStats tracks per-stage counters and byte totals. The record methods are
// safe to call from workers; read the fields once the stage has returned.
type RunStats struct {
	Stage            string
	Total            int
	Written          int
	Skipped          int
	Failed           int
	TotalInputBytes  int64
	TotalOutputBytes int64
	Duration         time.Duration

	mu sync.Mutex
}

func newStats(stage string, total int) *RunStats {
	return &RunStats{Stage: stage, Total: total}
}

func (s *RunStats) recordWrite(in, out int64) {
	s.mu.Lock()
	s.Written++
	s.TotalInputBytes += in
	s.TotalOutputBytes += out
	s.mu.Unlock()
}

func (s *RunStats) recordSkip() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

func (s *RunStats) recordFailure() {
	s.mu.Lock()
	s.Failed++
	s.mu.Unlock()
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}
