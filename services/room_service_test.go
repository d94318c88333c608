package services

import (
	"context"
	"log/slog"
	"room-sync/domain"
	"room-sync/errors"
	"room-sync/mocks"
	"room-sync/moderation"
	"room-sync/observability"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newService(t *testing.T, store *mocks.MockIMessageStore, stats *observability.Stats) *RoomService {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)
	return NewRoomService(store, nil, &moderator, log, stats, 20)
}

func TestRoomService_CreateRoom_Adds_Actor(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := newService(t, store, nil)

	room := domain.Room{ID: "r-1", Name: "pair", MemberIDs: []string{"alice", "bob"}}
	store.EXPECT().CreateRoom(gomock.Any(), "pair", []string{"alice", "bob"}).Return(room, nil)

	created, err := svc.CreateRoom(context.Background(), "alice", domain.CreateRoomCommand{Name: "pair", MemberIDs: []string{"bob"}})
	req.NoError(err)
	req.Equal(room, created)
}

func TestRoomService_CreateRoom_Conflict_Returns_Existing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := newService(t, store, nil)

	existing := domain.Room{ID: "r-existing", MemberIDs: []string{"alice", "bob"}}
	// Given a room already exists for alice and bob
	store.EXPECT().CreateRoom(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Room{}, errors.ConflictError{RoomID: "r-existing"})
	store.EXPECT().GetRoom(gomock.Any(), domain.RoomID("r-existing")).Return(existing, nil)

	// When alice creates it again
	room, err := svc.CreateRoom(context.Background(), "alice", domain.CreateRoomCommand{MemberIDs: []string{"bob"}})

	// Then the existing room is returned
	req.NoError(err)
	req.Equal(domain.RoomID("r-existing"), room.ID)
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := newService(t, store, nil)

	_, err := svc.CreateRoom(context.Background(), "alice", domain.CreateRoomCommand{})
	req.ErrorIs(err, errors.ErrInvalidRoom)

	_, err = svc.CreateRoom(context.Background(), "alice", domain.CreateRoomCommand{Name: strings.Repeat("x", 65), MemberIDs: []string{"bob"}})
	req.ErrorIs(err, errors.ErrInvalidRoom)
}

func TestRoomService_GetRoom_Requires_Membership(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := newService(t, store, nil)

	store.EXPECT().GetRoom(gomock.Any(), domain.RoomID("general")).
		Return(domain.Room{ID: "general", MemberIDs: []string{"alice", "bob"}}, nil).Times(2)

	_, err := svc.GetRoom(context.Background(), "alice", "general")
	req.NoError(err)

	_, err = svc.GetRoom(context.Background(), "mallory", "general")
	req.ErrorIs(err, errors.ErrAccessDenied)
}

func TestRoomService_PostMessage_Moderates_And_Keeps_ClientRef(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	stats := observability.NewStats()
	svc := newService(t, store, stats)

	confirmed := domain.Message{ID: "m-42", RoomID: "general", AuthorID: "alice", Text: "a ****** here", CreatedAt: time.Now(), State: domain.Confirmed, ClientRef: "temp-1"}

	// Given the store confirms whatever it receives
	store.EXPECT().AppendMessage(gomock.Any(), domain.RoomID("general"), gomock.Any()).
		DoAndReturn(func(ctx context.Context, roomID domain.RoomID, m domain.Message) (domain.Message, error) {
			// Then the text reaching the store is censored and the ref is kept
			req.Equal("a ****** here", m.Text)
			req.Equal("temp-1", m.ClientRef)
			req.Equal("alice", m.AuthorID)
			return confirmed, nil
		})

	// When alice posts a message with a censored word
	message, err := svc.PostMessage(context.Background(), domain.PostMessageCommand{
		Room: "general", AuthorID: "alice", Text: "  a badger here ", ClientRef: "temp-1",
	})
	req.NoError(err)
	req.Equal(confirmed, message)
	req.Equal(uint64(1), stats.Snapshot().Appends)
}

func TestRoomService_PostMessage_Rejects_Invalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := newService(t, store, nil)
	store.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	tests := []struct {
		name string
		cmd  domain.PostMessageCommand
	}{
		{"Blank text", domain.PostMessageCommand{Room: "general", AuthorID: "alice", Text: "   "}},
		{"No room", domain.PostMessageCommand{AuthorID: "alice", Text: "hi"}},
		{"Too long", domain.PostMessageCommand{Room: "general", AuthorID: "alice", Text: strings.Repeat("é", 21)}},
		{"Bad client ref", domain.PostMessageCommand{Room: "general", AuthorID: "alice", Text: "hi", ClientRef: "m-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PostMessage(context.Background(), tt.cmd)
			require.ErrorIs(t, err, errors.ErrInvalidMessage)
		})
	}
}

func TestRoomService_PostMessage_Propagates_Store_Errors(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	svc := newService(t, store, nil)

	store.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.ErrAccessDenied)

	_, err := svc.PostMessage(context.Background(), domain.PostMessageCommand{Room: "general", AuthorID: "mallory", Text: "hi"})
	req.ErrorIs(err, errors.ErrAccessDenied)
}

func TestRoomService_Search_Without_Index(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := newService(t, mocks.NewMockIMessageStore(ctrl), nil)

	_, err := svc.Search(context.Background(), "alice", "general", "hi")
	require.ErrorIs(t, err, errors.ErrUnsupported)
}
