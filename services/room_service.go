package services

import (
	"context"
	"fmt"
	"log/slog"
	"room-sync/contract"
	"room-sync/domain"
	"room-sync/errors"
	"room-sync/moderation"
	"room-sync/observability"
	"room-sync/repositories"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

type IRoomService interface {
	CreateRoom(ctx context.Context, actorID string, cmd domain.CreateRoomCommand) (domain.Room, error)
	GetRoom(ctx context.Context, actorID string, roomID domain.RoomID) (domain.Room, error)
	ListRooms(ctx context.Context, actorID string) ([]domain.Room, error)
	PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	Search(ctx context.Context, actorID string, roomID domain.RoomID, query string) ([]repositories.SearchHit, error)
}

type Searcher interface {
	Search(ctx context.Context, roomID domain.RoomID, query string) ([]repositories.SearchHit, error)
}

// RoomService enforces membership and message rules in front of the store.
type RoomService struct {
	store            contract.IMessageStore
	searcher         Searcher
	moderator        *moderation.Moderator
	validate         *validator.Validate
	log              *slog.Logger
	stats            *observability.Stats
	maxContentLength int
}

func NewRoomService(
	store contract.IMessageStore,
	searcher Searcher,
	moderator *moderation.Moderator,
	log *slog.Logger,
	stats *observability.Stats,
	maxContentLength int,
) *RoomService {
	return &RoomService{
		store:            store,
		searcher:         searcher,
		moderator:        moderator,
		validate:         validator.New(),
		log:              log,
		stats:            stats,
		maxContentLength: maxContentLength,
	}
}

// CreateRoom always includes the actor in the member set. When a room
// already exists for the same members, that room is returned without error.
func (s *RoomService) CreateRoom(ctx context.Context, actorID string, cmd domain.CreateRoomCommand) (domain.Room, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Room{}, fmt.Errorf("%v: %w", err, errors.ErrInvalidRoom)
	}
	members := append([]string{actorID}, cmd.MemberIDs...)
	room, err := s.store.CreateRoom(ctx, cmd.Name, members)

	var conflict errors.ConflictError
	if errors.As(err, &conflict) {
		s.log.Debug("Room already exists, redirecting", "room_id", conflict.RoomID, "user_id", actorID)
		return s.store.GetRoom(ctx, domain.RoomID(conflict.RoomID))
	}
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Room created", "room_id", room.ID, "user_id", actorID)
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, actorID string, roomID domain.RoomID) (domain.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.HasMember(actorID) {
		return domain.Room{}, fmt.Errorf("%s reading room %s: %w", actorID, roomID, errors.ErrAccessDenied)
	}
	return room, nil
}

func (s *RoomService) ListRooms(ctx context.Context, actorID string) ([]domain.Room, error) {
	return s.store.ListRoomsForMember(ctx, actorID)
}

// PostMessage validates, moderates and appends the message. The stored text
// may differ from the submitted one; ClientRef is kept so the sender can
// still correlate the confirmation with its pending entry.
func (s *RoomService) PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	cmd.Text = strings.TrimSpace(cmd.Text)
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%v: %w", err, errors.ErrInvalidMessage)
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(cmd.Text) > s.maxContentLength {
		return domain.Message{}, fmt.Errorf("message longer than %d characters: %w", s.maxContentLength, errors.ErrInvalidMessage)
	}

	text := cmd.Text
	if s.moderator != nil {
		var censored []string
		text, censored = s.moderator.Censor(cmd.Text)
		if len(censored) > 0 {
			s.log.Debug("Message censored", "room_id", cmd.Room, "user_id", cmd.AuthorID, "words", len(censored))
		}
	}

	confirmed, err := s.store.AppendMessage(ctx, cmd.Room, domain.Message{
		RoomID:    cmd.Room,
		AuthorID:  cmd.AuthorID,
		Text:      text,
		State:     domain.Pending,
		ClientRef: cmd.ClientRef,
		Lang:      moderation.DetectLanguage(cmd.Text),
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.stats.IncrAppends()
	return confirmed, nil
}

func (s *RoomService) Search(ctx context.Context, actorID string, roomID domain.RoomID, query string) ([]repositories.SearchHit, error) {
	if s.searcher == nil {
		return nil, errors.ErrUnsupported
	}
	if _, err := s.GetRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, roomID, query)
}
