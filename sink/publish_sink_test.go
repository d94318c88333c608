package sink

import (
	"context"
	"log/slog"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/errors"
	"room-sync/mocks"
	"room-sync/observability"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPublishSink_Publishes_Room_Then_Members(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	publisher := mocks.NewMockIPublisher(ctrl)
	s := NewPublishSink(publisher, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	evt := event.FanoutEvent{
		RoomID:    "general",
		Message:   domain.Message{ID: "m-42", Text: "hi"},
		MemberIDs: []string{"alice", "bob"},
	}

	gomock.InOrder(
		publisher.EXPECT().Publish(gomock.Any(), "room:general", evt).Return(nil),
		publisher.EXPECT().Publish(gomock.Any(), "user:alice", evt).Return(nil),
		publisher.EXPECT().Publish(gomock.Any(), "user:bob", evt).Return(nil),
	)

	req.NoError(s.Consume(context.Background(), evt))
}

func TestPublishSink_Keeps_Publishing_After_A_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	publisher := mocks.NewMockIPublisher(ctrl)
	stats := observability.NewStats()
	s := NewPublishSink(publisher, logs.GetLoggerFromLevel(slog.LevelDebug), stats)

	evt := event.FanoutEvent{RoomID: "general", MemberIDs: []string{"alice"}}

	// Given the room topic publish fails
	publisher.EXPECT().Publish(gomock.Any(), "room:general", evt).Return(errors.ErrTransientNetwork)
	publisher.EXPECT().Publish(gomock.Any(), "user:alice", evt).Return(nil)

	// When the event is consumed
	err := s.Consume(context.Background(), evt)

	// Then the member topic is still published and the failure surfaces
	req.ErrorIs(err, errors.ErrTransientNetwork)
	req.Equal(uint64(1), stats.Snapshot().PublishErrors)
}
