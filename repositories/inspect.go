package repositories

import (
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectRow renders a store entry for the debug inspector. Room documents
// are summarized; index keys are shown as raw rows.
func InspectRow(key string, value []byte) database.InspectRow {
	row := database.DefaultMapper(key, value)
	switch {
	case strings.HasPrefix(key, roomPrefix):
		room, err := DecodeRoom(value)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "ROOM"
		row.EntityID = string(room.ID)
		row.Namespace = room.Name
		row.Detail = fmt.Sprintf("%d members, %d messages", len(room.MemberIDs), len(room.Messages))
		if last, ok := room.LastMessage(); ok {
			row.Timestamp = last.CreatedAt.Format("15:04:05")
			row.Detail += fmt.Sprintf(", last by %s: %s", last.AuthorID, last.Text)
		}
	case strings.HasPrefix(key, memberPrefix):
		row.Type = "MEMBER"
	case strings.HasPrefix(key, membersPrefix):
		row.Type = "MEMBERS"
		row.Detail = string(value)
	}
	return row
}
