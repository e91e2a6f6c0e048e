package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectpreview/internal/domain"
	"projectpreview/internal/infra/logging"
	"projectpreview/internal/infra/slots"
)

// fakeRenderer records calls and concurrency and can inject failures.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   []string
	spans   []span
	delay   time.Duration
	err     error
	panics  bool
	current atomic.Int64
	peak    atomic.Int64
}

type span struct {
	url        string
	start, end time.Time
}

func (f *fakeRenderer) Capture(ctx context.Context, url string) ([]byte, error) {
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	start := time.Now()
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.spans = append(f.spans, span{url: url, start: start, end: time.Now()})
	f.mu.Unlock()

	if f.panics {
		panic("page crashed")
	}
	if f.err != nil {
		return nil, f.err
	}
	return testPNG(1200, 800), nil
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStatic map[string]string

func (f fakeStatic) Lookup(req domain.CaptureRequest) (string, bool) {
	loc, ok := f[req.Path()]
	return loc, ok
}

type fakeCooldown struct {
	mu     sync.Mutex
	marked map[string]string
}

func (f *fakeCooldown) Active(_ context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.marked[url]
	return ok
}

func (f *fakeCooldown) Mark(_ context.Context, url, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marked == nil {
		f.marked = map[string]string{}
	}
	f.marked[url] = reason
}

func testPNG(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)))
	return buf.Bytes()
}

func newService(t *testing.T, r Renderer, opts ...func(*Deps)) *Service {
	t.Helper()
	g, err := slots.New(1)
	require.NoError(t, err)
	d := Deps{
		Renderer: r,
		Guard:    g,
		Options: Options{
			FallbackPath:    "/logo.png",
			CacheMaxAge:     24 * time.Hour,
			SlotWaitTimeout: 5 * time.Second,
		},
	}
	for _, o := range opts {
		o(&d)
	}
	svc, err := New(d)
	require.NoError(t, err)
	return svc
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	logging.SetLoggerForTest(zerolog.New(&lockedWriter{w: buf}))
	return buf
}

type lockedWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestNew_RequiresRendererAndGuard(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
	_, err = New(Deps{Renderer: &fakeRenderer{}})
	assert.Error(t, err)
}

func TestPreview_SuccessReturnsPNGWithLongCache(t *testing.T) {
	r := &fakeRenderer{}
	svc := newService(t, r)

	res := svc.Preview(context.Background(), "2025", "alice", "demo")

	require.Equal(t, OutcomeImage, res.Outcome)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "public, max-age=86400", res.CacheControl)
	assert.NoError(t, res.Err)
	cfg, err := png.DecodeConfig(bytes.NewReader(res.Body))
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 800, cfg.Height)
	assert.Equal(t, []string{"https://alice.github.io/demo"}, r.calls)
}

func TestPreview_MalformedRequestsFallBackWithoutSlot(t *testing.T) {
	r := &fakeRenderer{}
	svc := newService(t, r)

	for _, in := range [][3]string{
		{"", "alice", "demo"},
		{"2025", "", "demo"},
		{"2025", "alice", ""},
		{"abc", "alice", "demo"},
	} {
		res := svc.Preview(context.Background(), in[0], in[1], in[2])
		assert.Equal(t, OutcomeFallback, res.Outcome)
		assert.Equal(t, "/logo.png", res.Location)
		assert.ErrorIs(t, res.Err, domain.ErrMalformedRequest)
	}
	assert.Zero(t, svc.Guard().Stats().Acquired)
	assert.Zero(t, r.callCount())
}

func TestPreview_SlotReleasedOnEveryFailure(t *testing.T) {
	failures := map[string]*fakeRenderer{
		"launch":     {err: fmt.Errorf("%w: exec: not found", domain.ErrLaunchFailure)},
		"navigate":   {err: fmt.Errorf("%w: %w", domain.ErrNavigation, context.DeadlineExceeded)},
		"screenshot": {err: fmt.Errorf("%w: encode", domain.ErrCaptureFailure)},
		"panic":      {panics: true},
	}
	for name, r := range failures {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, r)
			before := svc.Guard().Stats().InUse

			res := svc.Preview(context.Background(), "2025", "alice", "demo")

			assert.Equal(t, OutcomeFallback, res.Outcome)
			assert.Equal(t, "/logo.png", res.Location)
			assert.NotEqual(t, "public, max-age=86400", res.CacheControl)
			st := svc.Guard().Stats()
			assert.Equal(t, before, st.InUse)
			assert.EqualValues(t, 1, st.Acquired)
			assert.EqualValues(t, 1, st.Released)
		})
	}
}

func TestPreview_PanicIsCaptureFailure(t *testing.T) {
	svc := newService(t, &fakeRenderer{panics: true})
	res := svc.Preview(context.Background(), "2025", "alice", "demo")
	assert.ErrorIs(t, res.Err, domain.ErrCaptureFailure)
}

func TestPreview_SuccessiveCapturesAreIndependent(t *testing.T) {
	r := &fakeRenderer{}
	svc := newService(t, r)

	for i := 0; i < 2; i++ {
		res := svc.Preview(context.Background(), "2025", "alice", "demo")
		require.Equal(t, OutcomeImage, res.Outcome)
	}
	st := svc.Guard().Stats()
	assert.EqualValues(t, 2, st.Acquired)
	assert.EqualValues(t, 2, st.Released)
	assert.EqualValues(t, 0, st.InUse)
	assert.Equal(t, 2, r.callCount())
}

func TestPreview_ConcurrentRequestsNeverExceedOneBrowser(t *testing.T) {
	r := &fakeRenderer{delay: 15 * time.Millisecond}
	svc := newService(t, r)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Preview(context.Background(), "2025", fmt.Sprintf("user%d", i), "demo")
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, OutcomeImage, res.Outcome)
	}
	assert.EqualValues(t, 1, r.peak.Load())
	assert.EqualValues(t, 1, svc.Guard().Stats().Peak)
	assert.EqualValues(t, 0, svc.Guard().Stats().InUse)
}

func TestPreview_SecondRequestWaitsForFirstBrowserToClose(t *testing.T) {
	r := &fakeRenderer{delay: 60 * time.Millisecond}
	svc := newService(t, r)

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			svc.Preview(context.Background(), "2025", user, "demo")
		}(user)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	require.Len(t, r.spans, 2)
	first, second := r.spans[0], r.spans[1]
	if second.start.Before(first.start) {
		first, second = second, first
	}
	assert.False(t, second.start.Before(first.end), "second capture started before the first finished")
}

func TestPreview_NavigationTimeoutLogsUserAndReason(t *testing.T) {
	logs := captureLogs(t)
	r := &fakeRenderer{err: fmt.Errorf("%w: https://alice.github.io/demo: %w", domain.ErrNavigation, context.DeadlineExceeded)}
	svc := newService(t, r)

	res := svc.Preview(context.Background(), "2025", "alice", "demo")

	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, "/logo.png", res.Location)
	out := logs.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "navigation_timeout")
	assert.Contains(t, out, "https://alice.github.io/demo")
}

func TestPreview_StaticScreenshotShortCircuits(t *testing.T) {
	r := &fakeRenderer{}
	svc := newService(t, r, func(d *Deps) {
		d.Static = fakeStatic{"2025/bob/site": "/screenshots/2025/bob/site.png"}
	})

	res := svc.Preview(context.Background(), "2025", "bob", "site")

	assert.Equal(t, OutcomeStatic, res.Outcome)
	assert.Equal(t, "/screenshots/2025/bob/site.png", res.Location)
	assert.Zero(t, r.callCount())
	assert.Zero(t, svc.Guard().Stats().Acquired)
}

func TestPreview_CooldownSkipsRecentFailures(t *testing.T) {
	cd := &fakeCooldown{}
	r := &fakeRenderer{err: fmt.Errorf("%w: refused", domain.ErrNavigation)}
	svc := newService(t, r, func(d *Deps) { d.Cooldown = cd })

	first := svc.Preview(context.Background(), "2025", "alice", "demo")
	assert.Equal(t, OutcomeFallback, first.Outcome)
	assert.Equal(t, "network_error", cd.marked["https://alice.github.io/demo"])

	second := svc.Preview(context.Background(), "2025", "alice", "demo")
	assert.Equal(t, OutcomeFallback, second.Outcome)
	assert.ErrorIs(t, second.Err, domain.ErrCoolingDown)
	assert.Equal(t, 1, r.callCount())
	assert.EqualValues(t, 1, svc.Guard().Stats().Acquired)
}

func TestPreview_SlotWaitTimeout(t *testing.T) {
	r := &fakeRenderer{}
	cd := &fakeCooldown{}
	svc := newService(t, r, func(d *Deps) {
		d.Options.SlotWaitTimeout = 20 * time.Millisecond
		d.Cooldown = cd
	})

	held, err := svc.Guard().Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	res := svc.Preview(context.Background(), "2025", "alice", "demo")
	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrSlotTimeout)
	assert.Zero(t, r.callCount())
	assert.Empty(t, cd.marked, "slot timeouts say nothing about the site")
}

func TestRender_CanceledRequestContext(t *testing.T) {
	svc := newService(t, &fakeRenderer{})
	held, _ := svc.Guard().Acquire(context.Background())
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Render(ctx, domain.CaptureRequest{Year: 2025, Username: "alice", Project: "demo"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrSlotTimeout))
}

func TestPreview_FallbackPathFromOptions(t *testing.T) {
	svc := newService(t, &fakeRenderer{err: errors.New("boom")}, func(d *Deps) {
		d.Options.FallbackPath = "/placeholder.png"
	})
	res := svc.Preview(context.Background(), "2025", "alice", "demo")
	assert.Equal(t, "/placeholder.png", res.Location)
	assert.True(t, strings.HasPrefix(res.CacheControl, "no-"))
}
