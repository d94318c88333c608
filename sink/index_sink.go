package sink

import (
	"context"
	"log/slog"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/observability"
)

type messageIndexer interface {
	Index(message domain.Message) error
}

// IndexSink feeds the full-text search index.
type IndexSink struct {
	index messageIndexer
	log   *slog.Logger
	stats *observability.Stats
}

func NewIndexSink(index messageIndexer, log *slog.Logger, stats *observability.Stats) *IndexSink {
	return &IndexSink{index: index, log: log, stats: stats}
}

func (s *IndexSink) Name() string { return "index" }

func (s *IndexSink) Consume(ctx context.Context, e event.FanoutEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.index.Index(e.Message); err != nil {
		s.stats.IncrIndexErrors()
		return err
	}
	return nil
}
