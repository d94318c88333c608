package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"room-sync/domain"
	"room-sync/errors"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	roomPrefix    = "room:"
	memberPrefix  = "member:"
	membersPrefix = "members:"
)

// RoomRepository is the durable MessageStore backed by BadgerDB.
//
// Layout:
//
//	room:{room_id}                  -> JSON room document with its embedded message history
//	member:{len}:{member_id}:{room_id} -> membership index used by ListRoomsForMember
//	members:{sorted member ids}        -> room id, enforces one room per member set
//
// Member ids are opaque and length-prefixed inside keys.
//
// Appends to the same room are serialized through a per-room lock so the
// embedded history never interleaves two writers.
type RoomRepository struct {
	db    *badger.DB
	log   *slog.Logger
	locks *keyedMutex
	now   func() time.Time
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{
		db:    db,
		log:   log,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

// WithClock overrides the time source used to stamp confirmed messages.
func (r *RoomRepository) WithClock(now func() time.Time) *RoomRepository {
	r.now = now
	return r
}

// RoomPrefix is the key prefix of every room document.
func RoomPrefix() []byte {
	return []byte(roomPrefix)
}

func roomKey(id domain.RoomID) []byte {
	return []byte(roomPrefix + string(id))
}

func memberKey(memberID string, roomID domain.RoomID) []byte {
	return append(memberKeyPrefix(memberID), roomID...)
}

func memberKeyPrefix(memberID string) []byte {
	return []byte(memberPrefix + domain.KeySegment(memberID) + ":")
}

func membersKey(key string) []byte {
	return []byte(membersPrefix + key)
}

// DecodeRoom turns a stored room document back into a Room.
func DecodeRoom(value []byte) (domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(value, &room); err != nil {
		return domain.Room{}, fmt.Errorf("decode room document: %w", err)
	}
	return room, nil
}

// CreateRoom persists a new room. When a room already exists for the same
// member set, it returns an errors.ConflictError carrying the existing id.
func (r *RoomRepository) CreateRoom(ctx context.Context, name string, memberIDs []string) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	room, err := domain.NewRoom(domain.RoomID(domain.NewDurableID()), name, memberIDs)
	if err != nil {
		return domain.Room{}, err
	}

	unlock := r.locks.Lock(membersPrefix + room.MemberKey())
	defer unlock()

	err = r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(membersKey(room.MemberKey()))
		switch {
		case err == nil:
			existing, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			return errors.ConflictError{RoomID: string(existing)}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := putRoom(txn, *room); err != nil {
			return err
		}
		if err := txn.Set(membersKey(room.MemberKey()), []byte(room.ID)); err != nil {
			return err
		}
		for _, memberID := range room.MemberIDs {
			if err := txn.Set(memberKey(memberID, room.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	r.log.Debug("Room created", "room_id", room.ID, "members", len(room.MemberIDs))
	return *room, nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomID)
		return err
	})
	return room, err
}

// ListRoomsForMember returns the member's rooms ordered by most recent
// message first; rooms without messages come last, ties keep id order.
func (r *RoomRepository) ListRoomsForMember(ctx context.Context, memberID string) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberKeyPrefix(memberID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.RoomID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, domain.RoomID(strings.TrimPrefix(key, string(prefix))))
		}
		for _, id := range ids {
			room, err := getRoom(txn, id)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortByLastMessage(rooms)
	return rooms, nil
}

// ListRooms scans every room document.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := RoomPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			room, err := DecodeRoom(value)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}

// AppendMessage stamps the message with a durable id and a server timestamp
// and appends it to the room history. The server timestamp never goes
// backwards within a room, so the history stays chronological.
func (r *RoomRepository) AppendMessage(ctx context.Context, roomID domain.RoomID, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	unlock := r.locks.Lock(string(roomID))
	defer unlock()

	var confirmed domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if err != nil {
			return err
		}
		if !room.HasMember(message.AuthorID) {
			return fmt.Errorf("%s is not a member of room %s: %w", message.AuthorID, roomID, errors.ErrAccessDenied)
		}
		confirmed = domain.Message{
			ID:        domain.NewDurableID(),
			RoomID:    roomID,
			AuthorID:  message.AuthorID,
			Text:      message.Text,
			CreatedAt: r.nextTimestamp(room),
			State:     domain.Confirmed,
			ClientRef: message.ClientRef,
			Lang:      message.Lang,
		}
		room.PostMessage(confirmed)
		return putRoom(txn, room)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.Message{}, fmt.Errorf("append to room %s: %w", roomID, errors.ErrConflict)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return confirmed, nil
}

func (r *RoomRepository) nextTimestamp(room domain.Room) time.Time {
	now := r.now().UTC()
	if last, ok := room.LastMessage(); ok && now.Before(last.CreatedAt) {
		return last.CreatedAt
	}
	return now
}

func getRoom(txn *badger.Txn, roomID domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(roomID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, fmt.Errorf("room %s: %w", roomID, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Room{}, err
	}
	return DecodeRoom(value)
}

func putRoom(txn *badger.Txn, room domain.Room) error {
	bytes, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return txn.Set(roomKey(room.ID), bytes)
}

// SortByLastMessage orders rooms by LastMessageAt descending, nils last.
func SortByLastMessage(rooms []domain.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i].LastMessageAt, rooms[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
