package capture

import (
	"fmt"

	"projectpreview/internal/config"
	"projectpreview/internal/infra/chrome"
	"projectpreview/internal/infra/remote"
)

// NewRenderer builds the renderer selected by preview.renderer.
func NewRenderer(cfg config.Config) (Renderer, error) {
	switch cfg.Preview.Renderer {
	case config.RendererChromedp, "":
		return chrome.NewRenderer(chrome.OptionsFromConfig(cfg)), nil
	case config.RendererRemote:
		return remote.NewRenderer(remote.Config{
			Endpoint: cfg.Preview.RemoteEndpoint,
			Width:    cfg.Preview.Width,
			Height:   cfg.Preview.Height,
			Timeout:  cfg.Preview.RemoteTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown renderer %q", cfg.Preview.Renderer)
	}
}
