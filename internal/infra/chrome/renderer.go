// Package chrome captures project screenshots with a headless Chrome per request.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"projectpreview/internal/domain"
	"projectpreview/internal/infra/logging"
)

// captureTimeout bounds the settle delay plus the screenshot call.
const captureTimeout = 10 * time.Second

// Renderer launches a fresh browser for every capture and tears it down afterwards.
type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Capture renders url and returns a PNG clipped to the configured viewport.
// Errors wrap domain.ErrLaunchFailure, domain.ErrNavigation or domain.ErrCaptureFailure.
func (r *Renderer) Capture(ctx context.Context, url string) ([]byte, error) {
	profileDir, err := createProfileDir(r.opts.UserDataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLaunchFailure, err)
	}
	defer os.RemoveAll(profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.opts.allocatorOptions(profileDir)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// Cancelling the first chromedp context closes the browser and waits for it.
	defer browserCancel()

	if err := r.launch(browserCtx, browserCancel); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLaunchFailure, err)
	}
	logging.Debug("Browser launched", "url", url, "environment", r.opts.Environment)

	navCtx, navCancel := context.WithTimeout(browserCtx, r.opts.NavigationTimeout)
	err = chromedp.Run(navCtx,
		chromedp.EmulateViewport(int64(r.opts.Width), int64(r.opts.Height)),
		navigateAndWaitIdle(url),
	)
	navCancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrNavigation, url, err)
	}

	var buf []byte
	capCtx, capCancel := context.WithTimeout(browserCtx, r.opts.SettleDelay+captureTimeout)
	err = chromedp.Run(capCtx,
		chromedp.Sleep(r.opts.SettleDelay),
		screenshot(&buf, r.opts.Width, r.opts.Height),
	)
	capCancel()
	if err != nil {
		if IsSessionInterrupted(err) && ctx.Err() == nil {
			logging.Warn("Browser session lost during capture", "url", url, "error", err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrCaptureFailure, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot", domain.ErrCaptureFailure)
	}
	return buf, nil
}

// launch starts the browser with its own deadline. The first Run on a chromedp
// context owns the browser process, so the deadline is enforced by cancelling
// that context instead of deriving a timeout context from it.
func (r *Renderer) launch(browserCtx context.Context, cancel context.CancelFunc) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(r.opts.LaunchTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		cancel()
		<-done
		return fmt.Errorf("browser did not start within %s: %w", r.opts.LaunchTimeout, context.DeadlineExceeded)
	}
}

// navigateAndWaitIdle loads url and blocks until Chrome reports the page's network as idle.
func navigateAndWaitIdle(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		idle := make(chan struct{}, 1)
		listenCtx, stop := context.WithCancel(ctx)
		defer stop()

		navigated := false
		chromedp.ListenTarget(listenCtx, func(ev any) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok {
				return
			}
			switch e.Name {
			case "init":
				navigated = true
			case "networkIdle":
				if !navigated {
					return
				}
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})

		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if err := chromedp.Navigate(url).Do(ctx); err != nil {
			return err
		}

		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func screenshot(buf *[]byte, width, height int) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		*buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{X: 0, Y: 0, Width: float64(width), Height: float64(height), Scale: 1}).
			Do(ctx)
		return err
	})
}

// IsSessionInterrupted reports whether err means the browser session went away
// rather than the page itself failing.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "websocket", "session closed", "browser closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
