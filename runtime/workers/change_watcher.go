package workers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/repositories"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
)

const markerPrefix = "watcher:"

// RoomSource lists the current room documents, used to prime and catch up.
type RoomSource interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
}

// ChangeWatcher tails room document writes through badger's key subscription
// and emits one FanoutEvent per message appended since the last emission for
// that room. The first run baselines silently; every later run emits what
// was appended while it was not subscribed.
type ChangeWatcher struct {
	db      *badger.DB
	rooms   RoomSource
	log     *slog.Logger
	events  chan<- event.FanoutEvent
	status  func(serving bool)
	mu      sync.Mutex
	cursors map[domain.RoomID]int
}

func NewChangeWatcher(db *badger.DB, rooms RoomSource, log *slog.Logger, events chan<- event.FanoutEvent) *ChangeWatcher {
	return &ChangeWatcher{db: db, rooms: rooms, log: log, events: events}
}

// WithStatus registers a hook told whether the watcher is currently subscribed.
func (w *ChangeWatcher) WithStatus(status func(serving bool)) *ChangeWatcher {
	w.status = status
	return w
}

func (w *ChangeWatcher) Run(ctx context.Context) error {
	defer w.setStatus(false)

	w.mu.Lock()
	firstRun := w.cursors == nil
	w.mu.Unlock()
	if firstRun {
		if err := w.baseline(ctx); err != nil {
			return fmt.Errorf("baseline change watcher: %w", err)
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	marker := []byte(markerPrefix + uuid.NewString())
	registered := make(chan struct{})
	var once sync.Once
	subErr := make(chan error, 1)
	go func() {
		subErr <- w.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			return w.onChanges(subCtx, kvs, marker, func() { once.Do(func() { close(registered) }) })
		}, []pb.Match{{Prefix: repositories.RoomPrefix()}, {Prefix: marker}})
	}()

	// The subscription is live once our own marker write comes back through it.
	if err := w.awaitRegistration(ctx, marker, registered, subErr); err != nil {
		return err
	}
	if err := w.catchUp(ctx); err != nil {
		return fmt.Errorf("catch up change watcher: %w", err)
	}
	w.setStatus(true)
	w.log.Info("Change watcher subscribed")

	select {
	case err := <-subErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("subscription closed")
		}
		return fmt.Errorf("change watcher subscription: %w", err)
	case <-ctx.Done():
		cancel()
		<-subErr
		return ctx.Err()
	}
}

func (w *ChangeWatcher) awaitRegistration(ctx context.Context, marker []byte, registered <-chan struct{}, subErr <-chan error) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := w.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(marker, []byte{}).WithTTL(time.Minute))
		})
		if err != nil {
			return fmt.Errorf("write watcher marker: %w", err)
		}
		select {
		case <-registered:
			return w.db.Update(func(txn *badger.Txn) error { return txn.Delete(marker) })
		case err := <-subErr:
			if err == nil {
				err = fmt.Errorf("subscription closed before registration")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ChangeWatcher) onChanges(ctx context.Context, kvs *badger.KVList, marker []byte, markerSeen func()) error {
	for _, kv := range kvs.Kv {
		if bytes.Equal(kv.Key, marker) {
			markerSeen()
			continue
		}
		if len(kv.Value) == 0 {
			continue
		}
		room, err := repositories.DecodeRoom(kv.Value)
		if err != nil {
			w.log.Warn("Skipping undecodable room document", "key", string(kv.Key), "error", err)
			continue
		}
		if err := w.advance(ctx, room); err != nil {
			return err
		}
	}
	return nil
}

func (w *ChangeWatcher) baseline(ctx context.Context) error {
	rooms, err := w.rooms.ListRooms(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursors = make(map[domain.RoomID]int, len(rooms))
	for _, room := range rooms {
		w.cursors[room.ID] = len(room.Messages)
	}
	w.log.Debug("Change watcher baseline", "rooms", len(rooms))
	return nil
}

func (w *ChangeWatcher) catchUp(ctx context.Context) error {
	rooms, err := w.rooms.ListRooms(ctx)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if err := w.advance(ctx, room); err != nil {
			return err
		}
	}
	return nil
}

// advance emits the messages of room beyond its cursor, in history order.
// Both the subscription callback and the catch-up scan go through here, so
// a room's events leave in append order whichever path saw them first.
func (w *ChangeWatcher) advance(ctx context.Context, room domain.Room) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cursor := w.cursors[room.ID]
	for cursor < len(room.Messages) {
		select {
		case w.events <- event.NewFanoutEvent(room, room.Messages[cursor]):
			cursor++
			w.cursors[room.ID] = cursor
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *ChangeWatcher) setStatus(serving bool) {
	if w.status != nil {
		w.status(serving)
	}
}
