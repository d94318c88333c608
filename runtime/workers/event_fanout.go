package workers

import (
	"context"
	"log/slog"
	"room-sync/contract"
	"room-sync/domain/event"
	"room-sync/observability"
	"time"
)

// EventFanout hands every FanoutEvent produced by the ChangeWatcher to the
// sinks. Sinks run one after the other so events of a room reach the
// notification channel in append order. A failing or slow sink is logged
// and bounded by sinkTimeout, it never blocks the next event forever.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.FanoutEvent
	sinkTimeout time.Duration
	stats       *observability.Stats
	sinks       []contract.EventSink
}

func NewEventFanout(
	log *slog.Logger,
	events <-chan event.FanoutEvent,
	sinkTimeout time.Duration,
	stats *observability.Stats,
	sinks ...contract.EventSink,
) *EventFanout {
	return &EventFanout{
		log:         log,
		events:      events,
		sinkTimeout: sinkTimeout,
		stats:       stats,
		sinks:       sinks,
	}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Fanout channel closed")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout One sink after the other for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.FanoutEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Error("Sink failed",
				"sink", sinkName(sink),
				"room_id", evt.RoomID,
				"message_id", evt.Message.ID,
				"error", err)
		}
		cancel()
	}
	w.stats.IncrFanouts()
	w.log.Debug("Event fanned out", "room_id", evt.RoomID, "message_id", evt.Message.ID)
}

func sinkName(sink contract.EventSink) string {
	if named, ok := sink.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "sink"
}
