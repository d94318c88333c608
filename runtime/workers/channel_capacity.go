package workers

import (
	"context"
	"log/slog"
	"room-sync/domain/event"
	"room-sync/observability"
	"time"
)

// ChannelCapacityWorker samples the fanout queue. Reading len and cap of a
// channel never blocks, so sampling does not interfere with the fanout.
// A queue above the threshold means sinks are slower than appends.
type ChannelCapacityWorker struct {
	log              *slog.Logger
	events           chan event.FanoutEvent
	stats            *observability.Stats
	interval         time.Duration
	thresholdPercent int
}

func NewChannelCapacityWorker(
	log *slog.Logger,
	events chan event.FanoutEvent,
	stats *observability.Stats,
	interval time.Duration,
	thresholdPercent int,
) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:              log,
		events:           events,
		stats:            stats,
		interval:         interval,
		thresholdPercent: thresholdPercent,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() {
	length, capacity := len(w.events), cap(w.events)
	w.stats.SetFanoutBacklog(length)
	if capacity == 0 {
		return
	}
	if percent := length * 100 / capacity; percent >= w.thresholdPercent {
		w.log.Warn("Fanout queue is filling up", "length", length, "capacity", capacity, "percent", percent)
	}
}
