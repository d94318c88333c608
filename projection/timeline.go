// Package projection builds the client-side views from observed events:
// the per-room message timeline and the ordered room list.
// It holds no locks; its owner serializes access.
package projection

import (
	"fmt"
	"room-sync/domain"
	"room-sync/errors"
	"slices"
	"sort"
	"strings"
	"time"
)

// Timeline reconciles optimistic local sends with their confirmed copies.
// Messages are kept in chronological order of their effective timestamp:
// client send time while Pending, server time once Confirmed.
type Timeline struct {
	roomID   domain.RoomID
	now      func() time.Time
	messages []domain.Message
}

func NewTimeline(roomID domain.RoomID) *Timeline {
	return &Timeline{roomID: roomID, now: time.Now}
}

func (t *Timeline) WithClock(now func() time.Time) *Timeline {
	t.now = now
	return t
}

func (t *Timeline) RoomID() domain.RoomID { return t.roomID }

// SendLocal shows a Pending message right away and returns its temporary id.
func (t *Timeline) SendLocal(text, authorID string) string {
	message := domain.Message{
		ID:        domain.NewTempID(),
		RoomID:    t.roomID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: t.now().UTC(),
		State:     domain.Pending,
	}
	message.ClientRef = message.ID
	t.insert(message)
	return message.ID
}

// OnConfirmed applies a confirmed message and reports whether the view changed.
// A message already present is ignored, so redeliveries are harmless.
// The matching Pending entry is the one whose temporary id the server echoed
// in ClientRef; without one, the oldest Pending entry with the same author
// and text. The entry is replaced where it stands and only moves when the
// server timestamp would break the chronological order. Unmatched messages
// are inserted at their chronological position.
func (t *Timeline) OnConfirmed(message domain.Message) bool {
	if message.RoomID != "" && message.RoomID != t.roomID {
		return false
	}
	if t.indexOf(message.ID) >= 0 {
		return false
	}
	message.State = domain.Confirmed

	idx := t.matchPending(message)
	if idx < 0 {
		t.insert(message)
		return true
	}
	t.messages[idx] = message
	t.settle(idx)
	return true
}

// OnSendFailed removes the Pending entry and returns the retryable error the
// caller should surface. Sends are never retried here.
func (t *Timeline) OnSendFailed(tempID string) error {
	if idx := t.indexOf(tempID); idx >= 0 && t.messages[idx].IsPending() {
		t.messages = slices.Delete(t.messages, idx, idx+1)
	}
	return fmt.Errorf("send %s failed: %w", tempID, errors.ErrTransientNetwork)
}

// Reset replaces the whole state with an authoritative history.
// Pending entries are dropped.
func (t *Timeline) Reset(baseline []domain.Message) {
	t.messages = make([]domain.Message, 0, len(baseline))
	for _, message := range baseline {
		message.State = domain.Confirmed
		t.messages = append(t.messages, message)
	}
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
	})
}

func (t *Timeline) Messages() []domain.Message {
	return slices.Clone(t.messages)
}

func (t *Timeline) PendingCount() int {
	count := 0
	for _, message := range t.messages {
		if message.IsPending() {
			count++
		}
	}
	return count
}

func (t *Timeline) matchPending(confirmed domain.Message) int {
	if confirmed.ClientRef != "" {
		idx := t.indexOf(confirmed.ClientRef)
		if idx >= 0 && t.messages[idx].IsPending() {
			return idx
		}
		return -1
	}
	oldest := -1
	for i, message := range t.messages {
		if !message.IsPending() || message.AuthorID != confirmed.AuthorID || message.Text != confirmed.Text {
			continue
		}
		if oldest < 0 || message.CreatedAt.Before(t.messages[oldest].CreatedAt) {
			oldest = i
		}
	}
	return oldest
}

func (t *Timeline) indexOf(id string) int {
	if strings.TrimSpace(id) == "" {
		return -1
	}
	return slices.IndexFunc(t.messages, func(m domain.Message) bool { return m.ID == id })
}

// insert places the message after every entry that is not later than it.
func (t *Timeline) insert(message domain.Message) {
	at := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].CreatedAt.After(message.CreatedAt)
	})
	t.messages = slices.Insert(t.messages, at, message)
}

func (t *Timeline) settle(idx int) {
	current := t.messages[idx]
	beforeOK := idx == 0 || !t.messages[idx-1].CreatedAt.After(current.CreatedAt)
	afterOK := idx == len(t.messages)-1 || !current.CreatedAt.After(t.messages[idx+1].CreatedAt)
	if beforeOK && afterOK {
		return
	}
	t.messages = slices.Delete(t.messages, idx, idx+1)
	t.insert(current)
}
