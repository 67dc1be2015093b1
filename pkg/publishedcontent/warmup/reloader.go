package warmup

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Reloader reloads a cache on an interval and optionally warms it after each change.
type Reloader struct {
	cache    *publishedcontent.Cache
	interval time.Duration
	warm     bool
	logger   *slog.Logger
}

// NewReloader creates a reloader. A nil logger uses slog.Default.
func NewReloader(cache *publishedcontent.Cache, interval time.Duration, warm bool, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{cache: cache, interval: interval, warm: warm, logger: logger}
}

// RunOnce reloads the cache and, when the snapshot changed and warming is enabled, warms the
// published and preview views.
func (r *Reloader) RunOnce(ctx context.Context) (*publishedcontent.ReloadResult, error) {
	result, err := r.cache.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if result.Skipped || !r.warm {
		return result, nil
	}
	for _, preview := range []bool{false, true} {
		if _, err := Warm(ctx, r.cache, preview, r.logger); err != nil {
			r.logger.WarnContext(ctx, "Failed to warm cache", "preview", preview, "err", err)
		}
	}
	return result, nil
}

// Run reloads immediately and then at each interval until ctx is done. Reload failures are
// logged and the previous snapshot stays current. A non-positive interval runs once.
func (r *Reloader) Run(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Initial reload failed", "err", err)
	}
	if r.interval <= 0 {
		return
	}

	r.logger.InfoContext(ctx, "Reload scheduler started", "interval", r.interval, "warm", r.warm)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Reload scheduler stopped")
			return
		case <-ticker.C:
			result, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Scheduled reload failed", "err", err)
				continue
			}
			if !result.Skipped {
				r.logger.InfoContext(ctx, "Content reloaded", "generation", result.Generation, "changed", len(result.Changed))
			}
		}
	}
}
