package event

import (
	"room-sync/domain"
)

const (
	roomTopicPrefix = "room:"
	userTopicPrefix = "user:"
)

// FanoutEvent announces that a message was persisted in a room.
// It is produced once per append and may be delivered more than once.
type FanoutEvent struct {
	RoomID    domain.RoomID  `json:"room_id"`
	Message   domain.Message `json:"message"`
	MemberIDs []string       `json:"member_ids,omitempty"`
}

func NewFanoutEvent(room domain.Room, message domain.Message) FanoutEvent {
	return FanoutEvent{
		RoomID:    room.ID,
		Message:   message,
		MemberIDs: room.MemberIDs,
	}
}

// RoomTopic carries every message appended to the room.
func RoomTopic(roomID domain.RoomID) string {
	return roomTopicPrefix + string(roomID)
}

// UserTopic carries messages of every room the user belongs to.
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}
