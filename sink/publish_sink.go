package sink

import (
	"context"
	"fmt"
	"log/slog"
	"room-sync/contract"
	"room-sync/domain/event"
	"room-sync/errors"
	"room-sync/observability"
)

// PublishSink forwards each FanoutEvent to the room topic, then to the
// topic of every member so room lists refresh whichever room is open.
type PublishSink struct {
	publisher contract.IPublisher
	log       *slog.Logger
	stats     *observability.Stats
}

func NewPublishSink(publisher contract.IPublisher, log *slog.Logger, stats *observability.Stats) *PublishSink {
	return &PublishSink{publisher: publisher, log: log, stats: stats}
}

func (s *PublishSink) Name() string { return "publish" }

func (s *PublishSink) Consume(ctx context.Context, e event.FanoutEvent) error {
	var errs []error
	topics := append([]string{event.RoomTopic(e.RoomID)}, userTopics(e.MemberIDs)...)
	for _, topic := range topics {
		if err := s.publisher.Publish(ctx, topic, e); err != nil {
			s.stats.IncrPublishErrors()
			s.log.Error("Publish failed", "topic", topic, "room_id", e.RoomID, "error", err)
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

func userTopics(memberIDs []string) []string {
	topics := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		topics = append(topics, event.UserTopic(id))
	}
	return topics
}
