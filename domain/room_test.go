package domain

import (
	"room-sync/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoom_PostMessage_Updates_LastMessageAt(t *testing.T) {
	req := require.New(t)
	room, err := NewRoom("general", "General", []string{"alice", "bob"})
	req.NoError(err)

	// Given an empty room
	req.Nil(room.LastMessageAt)
	_, ok := room.LastMessage()
	req.False(ok)

	// When two messages are posted
	at := time.Now().UTC()
	room.PostMessage(Message{ID: "m-1", AuthorID: "alice", Text: "hi", CreatedAt: at, State: Confirmed})
	room.PostMessage(Message{ID: "m-2", AuthorID: "bob", Text: "yo", CreatedAt: at.Add(time.Second), State: Confirmed})

	// Then lastMessageAt follows the tail
	req.Len(room.Messages, 2)
	req.NotNil(room.LastMessageAt)
	req.Equal(at.Add(time.Second), *room.LastMessageAt)
	last, ok := room.LastMessage()
	req.True(ok)
	req.Equal("m-2", last.ID)
}

func TestNewRoom_Requires_Two_Distinct_Members(t *testing.T) {
	req := require.New(t)

	_, err := NewRoom("r", "solo", []string{"alice"})
	req.ErrorIs(err, errors.ErrInvalidRoom)

	_, err = NewRoom("r", "twins", []string{"alice", " alice ", ""})
	req.ErrorIs(err, errors.ErrInvalidRoom)

	room, err := NewRoom("r", " pair ", []string{"bob", "alice", "bob"})
	req.NoError(err)
	req.Equal("pair", room.Name)
	req.Equal([]string{"alice", "bob"}, room.MemberIDs)
	req.True(room.HasMember("alice"))
	req.False(room.HasMember("clara"))
}

func TestMemberKey_Ignores_Order_And_Duplicates(t *testing.T) {
	req := require.New(t)
	req.Equal(MemberKey([]string{"bob", "alice"}), MemberKey([]string{"alice", "bob", "alice"}))
	req.NotEqual(MemberKey([]string{"alice", "bob"}), MemberKey([]string{"alice", "clara"}))
	req.NotEqual(MemberKey([]string{"a,b", "c"}), MemberKey([]string{"a", "b,c"}))
}

func TestMessage_Temporary_Ids(t *testing.T) {
	req := require.New(t)
	tmp := NewTempID()
	req.True(IsTemporary(tmp))
	req.False(IsTemporary(NewDurableID()))
	req.NotEqual(tmp, NewTempID())
}

func TestMessageState_Text_Roundtrip(t *testing.T) {
	req := require.New(t)
	text, err := Confirmed.MarshalText()
	req.NoError(err)
	req.Equal("confirmed", string(text))

	var state MessageState
	req.NoError(state.UnmarshalText([]byte("pending")))
	req.Equal(Pending, state)
	req.Error(state.UnmarshalText([]byte("lost")))
}
