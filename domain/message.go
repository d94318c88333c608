// Package domain contains core concepts of the chat system.
// This file defines Message and its lifecycle states.
// A Confirmed message is immutable once persisted.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers assigned by a client before persistence.
// Durable identifiers are bare UUIDs and never carry it.
const TempIDPrefix = "temp-"

type MessageState int

const (
	Pending MessageState = iota
	Confirmed
)

func (s MessageState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("MessageState(%d)", int(s))
	}
}

func (s MessageState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MessageState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = Pending
	case "confirmed":
		*s = Confirmed
	default:
		return fmt.Errorf("unknown message state %q", text)
	}
	return nil
}

// Message represents a chat message, either optimistic (Pending) or persisted (Confirmed).
type Message struct {
	ID        string       `json:"id"`
	RoomID    RoomID       `json:"room_id"`
	AuthorID  string       `json:"author_id"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
	State     MessageState `json:"state"`
	// ClientRef is the temporary id of the send that produced this message,
	// echoed back by the server.
	ClientRef string `json:"client_ref,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

func NewDurableID() string {
	return uuid.NewString()
}

func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

func (m Message) IsPending() bool {
	return m.State == Pending
}
