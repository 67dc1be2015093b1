package publishedcontent

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

// EventSink defines the interface for cache lifecycle events
type EventSink interface {
	// SnapshotLoaded is fired after a new snapshot became current
	SnapshotLoaded(ctx context.Context, snapshot *Snapshot, changed []int) error

	// SnapshotReleased is fired after a replaced snapshot's cache tier was torn down
	SnapshotReleased(ctx context.Context, generation ulid.ULID) error

	// ContentInvalidated is fired when process-tier entries were dropped for content ids
	ContentInvalidated(ctx context.Context, ids []int) error
}

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) SnapshotLoaded(ctx context.Context, snapshot *Snapshot, changed []int) error {
	return nil
}

func (n *NoopEventSink) SnapshotReleased(ctx context.Context, generation ulid.ULID) error {
	return nil
}

func (n *NoopEventSink) ContentInvalidated(ctx context.Context, ids []int) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink logging at info level. A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (s *LoggingEventSink) SnapshotLoaded(ctx context.Context, snapshot *Snapshot, changed []int) error {
	s.logger.InfoContext(ctx, "Snapshot loaded",
		"generation", snapshot.Generation().String(),
		"version", snapshot.Version(),
		"published", snapshot.Len(false),
		"preview", snapshot.Len(true),
		"changed", len(changed))
	return nil
}

func (s *LoggingEventSink) SnapshotReleased(ctx context.Context, generation ulid.ULID) error {
	s.logger.InfoContext(ctx, "Snapshot released", "generation", generation.String())
	return nil
}

func (s *LoggingEventSink) ContentInvalidated(ctx context.Context, ids []int) error {
	s.logger.InfoContext(ctx, "Content invalidated", "ids", ids)
	return nil
}
