package projection

import (
	"room-sync/domain"
	"room-sync/domain/event"
	"slices"
	"sort"
	"strings"
	"time"
)

type RoomIndexEntry struct {
	RoomID          domain.RoomID `json:"room_id"`
	DisplayName     string        `json:"display_name"`
	LastMessageText string        `json:"last_message_text"`
	LastMessageAt   *time.Time    `json:"last_message_at"`
}

// EntryFromRoom derives the list entry a member sees. Unnamed rooms are
// displayed by their other members.
func EntryFromRoom(room domain.Room, viewerID string) RoomIndexEntry {
	entry := RoomIndexEntry{RoomID: room.ID, DisplayName: room.Name}
	if entry.DisplayName == "" {
		others := slices.DeleteFunc(slices.Clone(room.MemberIDs), func(id string) bool { return id == viewerID })
		entry.DisplayName = strings.Join(others, ", ")
	}
	if last, ok := room.LastMessage(); ok {
		at := last.CreatedAt
		entry.LastMessageText = last.Text
		entry.LastMessageAt = &at
	}
	return entry
}

// RoomIndex keeps the room list ordered by most recent message first,
// rooms without messages last. Sorting is stable.
type RoomIndex struct {
	entries []RoomIndexEntry
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{}
}

// Load replaces the list with a fresh baseline. Rooms missing from the
// baseline are dropped; a room the list already shows with a newer message
// keeps that message.
func (r *RoomIndex) Load(entries []RoomIndexEntry) {
	loaded := make([]RoomIndexEntry, 0, len(entries))
	for _, entry := range entries {
		if idx := r.indexOf(entry.RoomID); idx >= 0 {
			entry = merge(r.entries[idx], entry)
		}
		loaded = append(loaded, entry)
	}
	r.entries = loaded
	r.sort()
}

// Upsert adds or refreshes one entry, typically a room the client just
// created or fetched. The last message only moves forward in time.
func (r *RoomIndex) Upsert(entry RoomIndexEntry) {
	if idx := r.indexOf(entry.RoomID); idx >= 0 {
		r.entries[idx] = merge(r.entries[idx], entry)
	} else {
		r.entries = append(r.entries, entry)
	}
	r.sort()
}

// merge takes the display name of incoming and the newer of both last messages.
func merge(current, incoming RoomIndexEntry) RoomIndexEntry {
	if current.LastMessageAt != nil &&
		(incoming.LastMessageAt == nil || current.LastMessageAt.After(*incoming.LastMessageAt)) {
		incoming.LastMessageText = current.LastMessageText
		incoming.LastMessageAt = current.LastMessageAt
	}
	return incoming
}

// OnFanout moves the room of the event to its new rank and reports whether
// the list changed. Unknown rooms are ignored until the next Load. An event
// older than what the entry already shows is a late redelivery and is ignored.
func (r *RoomIndex) OnFanout(e event.FanoutEvent) bool {
	idx := r.indexOf(e.RoomID)
	if idx < 0 {
		return false
	}
	entry := &r.entries[idx]
	at := e.Message.CreatedAt
	if entry.LastMessageAt != nil && at.Before(*entry.LastMessageAt) {
		return false
	}
	entry.LastMessageText = e.Message.Text
	entry.LastMessageAt = &at
	r.sort()
	return true
}

func (r *RoomIndex) Entries() []RoomIndexEntry {
	return slices.Clone(r.entries)
}

func (r *RoomIndex) indexOf(roomID domain.RoomID) int {
	return slices.IndexFunc(r.entries, func(e RoomIndexEntry) bool { return e.RoomID == roomID })
}

func (r *RoomIndex) sort() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i].LastMessageAt, r.entries[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
