package warmup

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// ContentProcessor processes individual content items of a view.
//
// Example implementations:
//   - ValueWarmer (materializes every property value so shared tiers are filled)
//   - Counter (counts items per content type)
//   - Printer (writes a line per item)
type ContentProcessor interface {
	// Process is called for each content found during the scan.
	// Return error to mark this content as failed (scan continues with next content).
	Process(ctx context.Context, content *publishedcontent.Content) error
}

// ValueWarmer reads the value of every property. Values whose effective level is Snapshot or
// Elements land in the shared tiers, so the first real request finds them converted.
type ValueWarmer struct {
	values atomic.Int64
}

func (w *ValueWarmer) Process(ctx context.Context, content *publishedcontent.Content) error {
	for _, p := range content.Properties() {
		if !p.HasValue() {
			continue
		}
		_ = p.Value()
		w.values.Add(1)
	}
	return nil
}

// Values returns the number of values materialized so far.
func (w *ValueWarmer) Values() int64 { return w.values.Load() }

// Counter counts content items per content type alias.
type Counter struct {
	ByType map[string]int
}

func (c *Counter) Process(ctx context.Context, content *publishedcontent.Content) error {
	if c.ByType == nil {
		c.ByType = make(map[string]int)
	}
	c.ByType[content.ContentTypeAlias()]++
	return nil
}

// Printer writes one line per content item: id, level indentation and name.
type Printer struct {
	W io.Writer
}

func (p *Printer) Process(ctx context.Context, content *publishedcontent.Content) error {
	indent := content.Level() - 1
	if indent < 0 {
		indent = 0
	}
	_, err := fmt.Fprintf(p.W, "%*s%d %s (%s)\n", indent*2, "", content.ID(), content.Name(), content.ContentTypeAlias())
	return err
}

// funcProcessor adapts a function to the ContentProcessor interface.
type funcProcessor struct {
	fn func(context.Context, *publishedcontent.Content) error
}

func (p *funcProcessor) Process(ctx context.Context, content *publishedcontent.Content) error {
	return p.fn(ctx, content)
}
