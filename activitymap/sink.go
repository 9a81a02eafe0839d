package activitymap

import (
	"context"
	"log/slog"

	auth "github.com/goliatone/go-clinic-auth"
)

// SlogSink writes normalized events to a structured logger
type SlogSink struct {
	logger *slog.Logger
	opts   []Option
}

var _ auth.ActivitySink = (*SlogSink)(nil)

// NewSlogSink creates a sink logging at info level through logger
func NewSlogSink(logger *slog.Logger, opts ...Option) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, opts: opts}
}

// Record implements auth.ActivitySink
func (s *SlogSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	record := Normalize(event, s.opts...)

	attrs := []slog.Attr{
		slog.String("actor_id", record.ActorID),
		slog.String("verb", record.Verb),
		slog.String("object_type", record.ObjectType),
		slog.String("object_id", record.ObjectID),
		slog.String("channel", record.Channel),
		slog.Time("occurred_at", record.OccurredAt),
	}
	if len(record.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", record.Metadata))
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "activity", attrs...)
	return nil
}
