package prerender

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"projectpreview/internal/infra/logging"
)

// Scheduler runs the prerender job on a cron schedule. A tick that fires while
// the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	running atomic.Bool
	runs    atomic.Int64
}

// NewScheduler parses spec (six fields, seconds first) and registers job.
func NewScheduler(ctx context.Context, spec string, job func(ctx context.Context) (Report, error)) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(cron.WithSeconds())}
	_, err := s.cron.AddFunc(spec, func() {
		if !s.running.CompareAndSwap(false, true) {
			logging.Warn("Prerender still running, skipping tick", "schedule", spec)
			return
		}
		defer s.running.Store(false)
		s.runs.Add(1)

		rep, err := job(ctx)
		if err != nil {
			logging.Warn("Scheduled prerender stopped", "error", err)
			return
		}
		logging.Info("Scheduled prerender finished", "rendered", rep.Rendered, "skipped", rep.Skipped, "failed", len(rep.Failed))
	})
	if err != nil {
		return nil, fmt.Errorf("prerender schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents further runs and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Runs is the number of job executions started so far.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}
