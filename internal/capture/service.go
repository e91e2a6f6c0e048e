// Package capture is the preview pathway: validate the request, prefer a
// pre-generated screenshot, otherwise render the project page under the slot
// guard, and degrade to the fallback image on any failure.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"projectpreview/internal/domain"
	"projectpreview/internal/infra/logging"
	"projectpreview/internal/infra/metrics"
	"projectpreview/internal/infra/slots"
)

const (
	ContentTypePNG = "image/png"
	// RedirectCacheControl keeps clients from pinning a fallback or static redirect.
	RedirectCacheControl = "no-cache"
)

// Renderer turns a URL into PNG bytes.
type Renderer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// StaticLookup finds a pre-generated screenshot for a request.
type StaticLookup interface {
	Lookup(req domain.CaptureRequest) (location string, ok bool)
}

// Cooldown remembers recently failed project URLs.
type Cooldown interface {
	Active(ctx context.Context, url string) bool
	Mark(ctx context.Context, url, reason string)
}

type Outcome string

const (
	OutcomeImage    Outcome = "image"
	OutcomeStatic   Outcome = "static"
	OutcomeFallback Outcome = "fallback"
)

// Result is what the HTTP layer sends back: either PNG bytes or a redirect.
type Result struct {
	Outcome      Outcome
	Body         []byte
	ContentType  string
	CacheControl string
	Location     string
	// Err is the reason for a fallback; nil otherwise.
	Err error
}

type Options struct {
	FallbackPath    string
	CacheMaxAge     time.Duration
	SlotWaitTimeout time.Duration
}

// Deps bundles the collaborators of a Service. Static and Cooldown are optional.
type Deps struct {
	Renderer Renderer
	Guard    *slots.Guard
	Static   StaticLookup
	Cooldown Cooldown
	Options  Options
}

type Service struct {
	renderer Renderer
	guard    *slots.Guard
	static   StaticLookup
	cooldown Cooldown
	opts     Options
}

func New(d Deps) (*Service, error) {
	if d.Renderer == nil {
		return nil, errors.New("capture: renderer is required")
	}
	if d.Guard == nil {
		return nil, errors.New("capture: slot guard is required")
	}
	if d.Options.FallbackPath == "" {
		d.Options.FallbackPath = "/logo.png"
	}
	if d.Options.CacheMaxAge <= 0 {
		d.Options.CacheMaxAge = 24 * time.Hour
	}
	return &Service{
		renderer: d.Renderer,
		guard:    d.Guard,
		static:   d.Static,
		cooldown: d.Cooldown,
		opts:     d.Options,
	}, nil
}

// Guard exposes the slot guard for stats reporting.
func (s *Service) Guard() *slots.Guard {
	return s.guard
}

// Preview resolves a preview for raw path parameters. It never returns an
// error: every failure becomes a fallback redirect and is logged here.
func (s *Service) Preview(ctx context.Context, year, username, project string) Result {
	req, err := domain.ParseCaptureRequest(year, username, project)
	if err != nil {
		logging.Warn("Preview request rejected",
			"url", "<unresolved>", "year", year, "username", username, "project", project,
			"reason", domain.Reason(err), "error", err)
		return s.fallback(err)
	}
	url := req.ProjectURL()

	if s.static != nil {
		if loc, ok := s.static.Lookup(req); ok {
			metrics.ObserveResult(string(OutcomeStatic), "ok")
			return Result{Outcome: OutcomeStatic, Location: loc, CacheControl: RedirectCacheControl}
		}
	}

	if s.cooldown != nil && s.cooldown.Active(ctx, url) {
		logging.Info("Preview capture skipped", "url", url, "username", req.Username, "reason", domain.Reason(domain.ErrCoolingDown))
		return s.fallback(domain.ErrCoolingDown)
	}

	img, err := s.Render(ctx, req)
	if err != nil {
		reason := domain.Reason(err)
		logging.Error("Preview capture failed",
			"url", url, "year", req.Year, "username", req.Username, "project", req.Project,
			"reason", reason, "error", err)
		if s.cooldown != nil && !errors.Is(err, domain.ErrSlotTimeout) && ctx.Err() == nil {
			s.cooldown.Mark(ctx, url, reason)
		}
		return s.fallback(err)
	}

	metrics.ObserveResult(string(OutcomeImage), "ok")
	return Result{
		Outcome:      OutcomeImage,
		Body:         img,
		ContentType:  ContentTypePNG,
		CacheControl: fmt.Sprintf("public, max-age=%d", int64(s.opts.CacheMaxAge/time.Second)),
	}
}

// Render captures req under a slot. The slot is released on every exit path,
// including a panicking renderer, which is reported as a capture failure.
func (s *Service) Render(ctx context.Context, req domain.CaptureRequest) (img []byte, err error) {
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.SlotWaitTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, s.opts.SlotWaitTimeout)
	}
	slot, err := s.guard.Acquire(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSlotTimeout, err)
	}
	defer slot.Release()

	metrics.ObserveSlotWait(slot.Waited)
	metrics.IncActiveBrowsers()
	defer metrics.DecActiveBrowsers()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: renderer panic: %v", domain.ErrCaptureFailure, r)
		}
		outcome := OutcomeImage
		if err != nil {
			outcome = OutcomeFallback
		}
		metrics.ObserveCapture(string(outcome), time.Since(start))
	}()

	logging.Debug("Capture slot acquired", "url", req.ProjectURL(), "waited_ms", slot.Waited.Milliseconds())
	return s.renderer.Capture(ctx, req.ProjectURL())
}

func (s *Service) fallback(err error) Result {
	metrics.ObserveResult(string(OutcomeFallback), domain.Reason(err))
	return Result{
		Outcome:      OutcomeFallback,
		Location:     s.opts.FallbackPath,
		CacheControl: RedirectCacheControl,
		Err:          err,
	}
}
