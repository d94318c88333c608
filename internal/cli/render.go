package cli

import (
	"fmt"
	"io"
	"room-sync/domain"
	"room-sync/projection"
	"room-sync/repositories"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

const timeLayout = "2006-01-02 15:04"

func formatMessage(message domain.Message, self string) string {
	at := message.CreatedAt.Local().Format("15:04:05")
	author := color.Cyan.Sprint(message.AuthorID)
	if message.AuthorID == self {
		author = color.Green.Sprint(message.AuthorID)
	}
	line := fmt.Sprintf("%s %s: %s", color.Gray.Sprint(at), author, message.Text)
	if message.IsPending() {
		line += color.Gray.Sprint(" (sending)")
	}
	return line
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderRooms(w io.Writer, entries []projection.RoomIndexEntry) {
	table := newTable(w, []string{"Room", "Name", "Last message", "At"})
	for _, entry := range entries {
		at := "-"
		if entry.LastMessageAt != nil {
			at = entry.LastMessageAt.Local().Format(timeLayout)
		}
		table.Append([]string{string(entry.RoomID), entry.DisplayName, entry.LastMessageText, at})
	}
	table.Render()
}

func renderHits(w io.Writer, hits []repositories.SearchHit) {
	table := newTable(w, []string{"At", "Author", "Text"})
	for _, hit := range hits {
		table.Append([]string{hit.CreatedAt.Local().Format(timeLayout), hit.AuthorID, hit.Text})
	}
	table.Render()
}
