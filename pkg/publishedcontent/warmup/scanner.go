// Package warmup walks the content of a view in batches, typically right after a reload so
// shared cache tiers are filled before traffic arrives.
package warmup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Scanner walks the content of one view.
type Scanner struct {
	view   *publishedcontent.View
	logger *slog.Logger
}

// New creates a new Scanner over a view. The caller keeps ownership of the view.
func New(view *publishedcontent.View, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{view: view, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// ContentTypes restricts the scan to these content type aliases (case-insensitive)
	ContentTypes []string

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ContentProcessor

	// BatchSize controls how many items are processed between progress reports (default: 100)
	BatchSize int

	// DryRun if true, doesn't process contents, just reports what would be processed
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	TotalFound     int64
	TotalProcessed int64
	TotalFailed    int64
	FailedIDs      []int
}

func (o ScanOptions) matches(contentType string) bool {
	if len(o.ContentTypes) == 0 {
		return true
	}
	for _, ct := range o.ContentTypes {
		if strings.EqualFold(ct, contentType) {
			return true
		}
	}
	return false
}

// Scan processes every content item of the view's snapshot in id order. A failing item is
// recorded and the scan continues; a cancelled context stops it between batches.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	var ids []int
	for _, n := range s.view.Snapshot().Nodes(s.view.Preview()) {
		if opts.matches(n.ContentTypeAlias) {
			ids = append(ids, n.ID)
		}
	}
	result.TotalFound = int64(len(ids))

	for start := 0; start < len(ids); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := min(start+opts.BatchSize, len(ids))

		for _, id := range ids[start:end] {
			if opts.DryRun {
				s.logger.Info("Would process content", "id", id)
				result.TotalProcessed++
				continue
			}

			content, err := s.view.Content(id)
			if err == nil {
				err = opts.Processor.Process(ctx, content)
			}
			if err != nil {
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, id)
				s.logger.Error("Failed to process content", "id", id, "err", err)
				continue
			}
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}
	}

	return result, nil
}

// ForEach processes each content item with a callback function.
func (s *Scanner) ForEach(ctx context.Context, fn func(context.Context, *publishedcontent.Content) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{Processor: &funcProcessor{fn: fn}})
}

// Warm opens a view on the cache's current snapshot and materializes every property value.
func Warm(ctx context.Context, cache *publishedcontent.Cache, preview bool, logger *slog.Logger) (*ScanResult, error) {
	view, err := cache.OpenView(preview)
	if err != nil {
		return nil, err
	}
	defer view.Close()

	warmer := &ValueWarmer{}
	result, err := New(view, logger).Scan(ctx, ScanOptions{Processor: warmer})
	if err != nil {
		return result, err
	}
	if logger != nil {
		logger.InfoContext(ctx, "Warmed content cache",
			"preview", preview, "content", result.TotalProcessed, "values", warmer.Values())
	}
	return result, nil
}
