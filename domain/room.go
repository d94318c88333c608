package domain

import (
	"room-sync/errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

type RoomID string

// Room is persisted as a single document: the member set plus the
// append-only, chronological message history.
type Room struct {
	ID            RoomID     `json:"id"`
	Name          string     `json:"name"`
	MemberIDs     []string   `json:"member_ids"`
	Messages      []Message  `json:"messages"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// NewRoom normalizes the member set (trimmed, unique, sorted) and
// rejects rooms with fewer than two distinct members.
func NewRoom(id RoomID, name string, memberIDs []string) (*Room, error) {
	members := NormalizeMembers(memberIDs)
	if len(members) < 2 {
		return nil, errors.ErrInvalidRoom
	}
	return &Room{
		ID:        id,
		Name:      strings.TrimSpace(name),
		MemberIDs: members,
		Messages:  nil,
	}, nil
}

// PostMessage appends a message and keeps LastMessageAt in sync with the tail.
func (r *Room) PostMessage(message Message) {
	r.Messages = append(r.Messages, message)
	at := message.CreatedAt
	r.LastMessageAt = &at
}

func (r *Room) LastMessage() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

func (r *Room) HasMember(memberID string) bool {
	_, found := slices.BinarySearch(r.MemberIDs, memberID)
	return found
}

func (r *Room) MemberKey() string {
	return MemberKey(r.MemberIDs)
}

// MemberKey identifies a member set regardless of order or duplicates.
// Ids are length-prefixed so no id content can collide with a separator.
func MemberKey(memberIDs []string) string {
	return strings.Join(lo.Map(NormalizeMembers(memberIDs), func(id string, _ int) string {
		return KeySegment(id)
	}), ",")
}

// KeySegment encodes an opaque id as "<byte length>:<id>" for use inside a
// composite storage key.
func KeySegment(id string) string {
	return strconv.Itoa(len(id)) + ":" + id
}

func NormalizeMembers(memberIDs []string) []string {
	members := lo.Uniq(lo.Compact(lo.Map(memberIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))
	slices.Sort(members)
	return members
}
