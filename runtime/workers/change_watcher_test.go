package workers

import (
	"context"
	"log/slog"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/repositories"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func receive(t *testing.T, events <-chan event.FanoutEvent) event.FanoutEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no fanout event received")
		return event.FanoutEvent{}
	}
}

func startWatcher(t *testing.T, watcher *ChangeWatcher) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestChangeWatcher_Emits_One_Event_Per_Append(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	repository := repositories.NewRoomRepository(db, slog.Default())
	events := make(chan event.FanoutEvent, 16)

	// Given a room with history before the watcher starts
	room, err := repository.CreateRoom(ctx, "general", []string{"alice", "bob"})
	req.NoError(err)
	_, err = repository.AppendMessage(ctx, room.ID, domain.Message{AuthorID: "alice", Text: "old"})
	req.NoError(err)

	var serving atomic.Bool
	watcher := NewChangeWatcher(db, repository, slog.Default(), events).
		WithStatus(func(s bool) { serving.Store(s) })
	startWatcher(t, watcher)
	req.Eventually(serving.Load, 2*time.Second, 10*time.Millisecond)

	// When two messages are appended
	first, err := repository.AppendMessage(ctx, room.ID, domain.Message{AuthorID: "alice", Text: "one"})
	req.NoError(err)
	second, err := repository.AppendMessage(ctx, room.ID, domain.Message{AuthorID: "bob", Text: "two"})
	req.NoError(err)

	// Then exactly those two are emitted, in append order, with the members
	e1 := receive(t, events)
	e2 := receive(t, events)
	req.Equal(first, e1.Message)
	req.Equal(second, e2.Message)
	req.Equal(room.ID, e1.RoomID)
	req.Equal([]string{"alice", "bob"}, e1.MemberIDs)
	req.Never(func() bool { return len(events) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestChangeWatcher_Room_Creation_Emits_Nothing(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repository := repositories.NewRoomRepository(db, slog.Default())
	events := make(chan event.FanoutEvent, 16)

	var serving atomic.Bool
	watcher := NewChangeWatcher(db, repository, slog.Default(), events).
		WithStatus(func(s bool) { serving.Store(s) })
	startWatcher(t, watcher)
	req.Eventually(serving.Load, 2*time.Second, 10*time.Millisecond)

	_, err := repository.CreateRoom(context.Background(), "general", []string{"alice", "bob"})
	req.NoError(err)
	req.Never(func() bool { return len(events) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestChangeWatcher_Restart_Catches_Up_Missed_Appends(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	repository := repositories.NewRoomRepository(db, slog.Default())
	events := make(chan event.FanoutEvent, 16)
	room, err := repository.CreateRoom(ctx, "general", []string{"alice", "bob"})
	req.NoError(err)

	var serving atomic.Bool
	watcher := NewChangeWatcher(db, repository, slog.Default(), events).
		WithStatus(func(s bool) { serving.Store(s) })

	// Given a first run that goes down
	cancel, done := startWatcher(t, watcher)
	req.Eventually(serving.Load, 2*time.Second, 10*time.Millisecond)
	cancel()
	req.ErrorIs(<-done, context.Canceled)
	req.False(serving.Load())

	// When a message is appended while disconnected
	missed, err := repository.AppendMessage(ctx, room.ID, domain.Message{AuthorID: "bob", Text: "while down"})
	req.NoError(err)

	// Then the next run emits it
	startWatcher(t, watcher)
	req.Equal(missed, receive(t, events).Message)
	req.Eventually(serving.Load, 2*time.Second, 10*time.Millisecond)
	req.Never(func() bool { return len(events) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
