// Package prerender fills the static screenshot tier ahead of time.
package prerender

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"projectpreview/internal/domain"
	"projectpreview/internal/infra/logging"
)

// Paths enumerates capture requests; Year 0 means every year.
type Paths interface {
	Paths(year int) []domain.CaptureRequest
	AllPaths() []domain.CaptureRequest
}

// Renderer renders one request under the capture slot guard.
type Renderer interface {
	Render(ctx context.Context, req domain.CaptureRequest) ([]byte, error)
}

type Store interface {
	Lookup(req domain.CaptureRequest) (string, bool)
	Save(ctx context.Context, req domain.CaptureRequest, png []byte) (string, error)
}

type Options struct {
	Year  int
	Force bool
	// Limiter paces captures so a run does not hammer the hosting provider. Nil disables pacing.
	Limiter *rate.Limiter
}

// NewLimiter returns a limiter for perSecond captures, or nil for 0.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type Report struct {
	Rendered int       `json:"rendered"`
	Skipped  int       `json:"skipped"`
	Failed   []Failure `json:"failed,omitempty"`
}

// Run renders every catalog path that has no screenshot yet (all of them with
// Force). Individual failures are collected; only cancellation stops the run.
func Run(ctx context.Context, paths Paths, r Renderer, store Store, opts Options) (Report, error) {
	reqs := paths.AllPaths()
	if opts.Year > 0 {
		reqs = paths.Paths(opts.Year)
	}

	var rep Report
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if !opts.Force {
			if _, ok := store.Lookup(req); ok {
				rep.Skipped++
				continue
			}
		}

		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return rep, err
			}
		}

		start := time.Now()
		img, err := r.Render(ctx, req)
		if err == nil {
			_, err = store.Save(ctx, req, img)
		}
		if err != nil {
			reason := domain.Reason(err)
			logging.Warn("Prerender failed", "url", req.ProjectURL(), "path", req.Path(), "reason", reason, "error", err)
			rep.Failed = append(rep.Failed, Failure{Path: req.Path(), Reason: reason})
			continue
		}
		rep.Rendered++
		logging.Info("Prerendered", "path", req.Path(), "duration_ms", time.Since(start).Milliseconds())
	}
	return rep, nil
}
