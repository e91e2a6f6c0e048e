package tokens

import (
	"context"
	"time"

	"projectpreview/internal/infra/logging"
)

// Repository loads the full token table.
type Repository interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Reloader refreshes a Cache from a Repository. A failed load keeps the
// previous token set.
type Reloader struct {
	repo     Repository
	cache    *Cache
	interval time.Duration
}

func NewReloader(repo Repository, cache *Cache, interval time.Duration) *Reloader {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reloader{repo: repo, cache: cache, interval: interval}
}

func (r *Reloader) LoadOnce(ctx context.Context) error {
	m, err := r.repo.LoadTokens(ctx)
	if err != nil {
		return err
	}
	r.cache.Replace(m)
	logging.Debug("API tokens loaded", "count", len(m))
	return nil
}

// Start reloads on every tick until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err)
				}
			}
		}
	}()
}
