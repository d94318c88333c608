// Package gateway carries the room operations and the notification
// channel over a single WebSocket connection per client.
//
// Client frames are Requests answered by exactly one "response" Frame with
// the same id. Events of a subscription are pushed as "event" Frames tagged
// with the subscription id the client chose.
package gateway

import (
	"context"
	"fmt"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/errors"
	"room-sync/repositories"
)

const (
	OpCreateRoom  = "create_room"
	OpGetRoom     = "get_room"
	OpListRooms   = "list_rooms"
	OpPostMessage = "post_message"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpSearch      = "search"

	FrameResponse = "response"
	FrameEvent    = "event"
)

type Request struct {
	ID             string        `json:"id" validate:"required"`
	Op             string        `json:"op" validate:"required,oneof=create_room get_room list_rooms post_message subscribe unsubscribe search"`
	RoomID         domain.RoomID `json:"room_id,omitempty"`
	Name           string        `json:"name,omitempty"`
	MemberID       string        `json:"member_id,omitempty"`
	MemberIDs      []string      `json:"member_ids,omitempty"`
	Text           string        `json:"text,omitempty"`
	ClientRef      string        `json:"client_ref,omitempty"`
	Topic          string        `json:"topic,omitempty"`
	SubscriptionID string        `json:"subscription_id,omitempty"`
	Query          string        `json:"query,omitempty"`
}

type Frame struct {
	Type           string                   `json:"type"`
	ID             string                   `json:"id,omitempty"`
	SubscriptionID string                   `json:"subscription_id,omitempty"`
	Room           *domain.Room             `json:"room,omitempty"`
	Rooms          []domain.Room            `json:"rooms,omitempty"`
	Message        *domain.Message          `json:"message,omitempty"`
	Hits           []repositories.SearchHit `json:"hits,omitempty"`
	Event          *event.FanoutEvent       `json:"event,omitempty"`
	Error          *ErrorBody               `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// RoomID is set on conflicts, pointing at the existing room.
	RoomID string `json:"room_id,omitempty"`
}

const (
	CodeNotFound       = "not_found"
	CodeAccessDenied   = "access_denied"
	CodeConflict       = "conflict"
	CodeInvalidRoom    = "invalid_room"
	CodeInvalidMessage = "invalid_message"
	CodeBadRequest     = "bad_request"
	CodeUnauthorized   = "unauthorized"
	CodeUnsupported    = "unsupported"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal"
)

// NewErrorBody classifies a server-side error for the wire.
func NewErrorBody(err error) *ErrorBody {
	body := &ErrorBody{Code: CodeInternal, Message: err.Error()}
	var conflict errors.ConflictError
	switch {
	case errors.As(err, &conflict):
		body.Code = CodeConflict
		body.RoomID = conflict.RoomID
	case errors.Is(err, errors.ErrNotFound):
		body.Code = CodeNotFound
	case errors.Is(err, errors.ErrAccessDenied):
		body.Code = CodeAccessDenied
	case errors.Is(err, errors.ErrConflict):
		body.Code = CodeConflict
	case errors.Is(err, errors.ErrInvalidRoom):
		body.Code = CodeInvalidRoom
	case errors.Is(err, errors.ErrInvalidMessage):
		body.Code = CodeInvalidMessage
	case errors.Is(err, errors.ErrInvalidToken):
		body.Code = CodeUnauthorized
	case errors.Is(err, errors.ErrUnsupported):
		body.Code = CodeUnsupported
	case errors.Is(err, errors.ErrTransientNetwork), errors.Is(err, context.DeadlineExceeded):
		body.Code = CodeUnavailable
	}
	return body
}

// Err turns a wire error back into the matching sentinel. Unknown and
// internal failures are reported as transient: retrying is all a client can do.
func (b *ErrorBody) Err() error {
	switch b.Code {
	case CodeNotFound:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrNotFound)
	case CodeAccessDenied:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrAccessDenied)
	case CodeConflict:
		if b.RoomID != "" {
			return errors.ConflictError{RoomID: b.RoomID}
		}
		return fmt.Errorf("%s: %w", b.Message, errors.ErrConflict)
	case CodeInvalidRoom:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrInvalidRoom)
	case CodeInvalidMessage, CodeBadRequest:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrInvalidMessage)
	case CodeUnauthorized:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrInvalidToken)
	case CodeUnsupported:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrUnsupported)
	default:
		return fmt.Errorf("%s: %w", b.Message, errors.ErrTransientNetwork)
	}
}
