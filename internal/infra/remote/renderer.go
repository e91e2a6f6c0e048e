// Package remote captures screenshots through an external HTTP screenshot service.
package remote

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"projectpreview/internal/domain"
)

// maxImageBytes caps the response body read from the screenshot service.
const maxImageBytes = 16 << 20

// Config describes the screenshot endpoint.
type Config struct {
	Endpoint string
	Width    int
	Height   int
	Timeout  time.Duration
}

// Renderer calls GET {Endpoint}?url=..&width=..&height=.. and expects a PNG body.
type Renderer struct {
	cfg    Config
	client *http.Client
}

// NewRenderer validates the endpoint and builds a renderer with its own HTTP client.
func NewRenderer(cfg Config) (*Renderer, error) {
	u, err := neturl.ParseRequestURI(strings.TrimSpace(cfg.Endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("remote renderer endpoint must be an http(s) URL, got %q", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Renderer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Capture asks the remote service to render url.
func (r *Renderer) Capture(ctx context.Context, url string) ([]byte, error) {
	endpoint, _ := neturl.Parse(r.cfg.Endpoint)
	q := endpoint.Query()
	q.Set("url", url)
	q.Set("width", strconv.Itoa(r.cfg.Width))
	q.Set("height", strconv.Itoa(r.cfg.Height))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrLaunchFailure, err)
	}
	req.Header.Set("Accept", "image/png")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrNavigation, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: screenshot service returned %d for %s", domain.ErrNavigation, resp.StatusCode, url)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "image/png" {
		return nil, fmt.Errorf("%w: unexpected content type %q", domain.ErrCaptureFailure, resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrCaptureFailure, err)
	}
	if len(body) == 0 || len(body) > maxImageBytes {
		return nil, fmt.Errorf("%w: image size %d out of range", domain.ErrCaptureFailure, len(body))
	}
	return body, nil
}
