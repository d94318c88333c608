package runtime_test

import (
	"context"
	"log/slog"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/observability"
	"room-sync/pubsub"
	"room-sync/repositories"
	"room-sync/runtime"
	"room-sync/runtime/workers"
	"room-sync/sink"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func Test_Orchestrator_Publishes_Appended_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer func() { _ = db.Close() }()

	repository := repositories.NewRoomRepository(db, log)
	hub := pubsub.NewHub(log, 8)
	defer func() { _ = hub.Close() }()
	stats := observability.NewStats()

	var serving atomic.Bool
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond, 100*time.Millisecond),
		db, repository, stats, 8, time.Second, 0).
		AddSinks(sink.NewPublishSink(hub, log, stats)).
		WithStatus(func(s bool) { serving.Store(s) })

	room, err := repository.CreateRoom(ctx, "general", []string{"alice", "bob"})
	req.NoError(err)

	// Given alice watches the room and bob his room list
	roomEvents := make(chan event.FanoutEvent, 4)
	bobEvents := make(chan event.FanoutEvent, 4)
	_, err = hub.Subscribe(ctx, event.RoomTopic(room.ID), func(e event.FanoutEvent) { roomEvents <- e })
	req.NoError(err)
	_, err = hub.Subscribe(ctx, event.UserTopic("bob"), func(e event.FanoutEvent) { bobEvents <- e })
	req.NoError(err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- orchestrator.Start(runCtx) }()
	req.Eventually(serving.Load, 2*time.Second, 10*time.Millisecond)

	// When alice appends a message
	confirmed, err := repository.AppendMessage(ctx, room.ID, domain.Message{AuthorID: "alice", Text: "hello"})
	req.NoError(err)

	// Then both topics deliver it
	for _, ch := range []chan event.FanoutEvent{roomEvents, bobEvents} {
		select {
		case e := <-ch:
			req.Equal(confirmed.ID, e.Message.ID)
			req.Equal(room.ID, e.RoomID)
		case <-time.After(2 * time.Second):
			req.Fail("message was not published")
		}
	}
	req.Eventually(func() bool { return stats.Snapshot().Fanouts == 1 }, time.Second, 10*time.Millisecond)

	// And the orchestrator shuts down on Stop
	orchestrator.Stop()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("orchestrator did not stop")
	}
	cancel()
	req.False(serving.Load())
}
