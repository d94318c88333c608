package sink

import (
	"context"
	"log/slog"
	"room-sync/domain"
	"room-sync/domain/event"
	"room-sync/repositories"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"
)

func TestIndexSink_Makes_Message_Searchable(t *testing.T) {
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer func() { _ = writer.Close() }()
	index := repositories.NewMessageIndex(writer, slog.Default(), 10)
	s := NewIndexSink(index, slog.Default(), nil)

	message := domain.Message{ID: "m-42", RoomID: "general", AuthorID: "alice", Text: "release notes are ready", CreatedAt: time.Now().UTC()}
	req.NoError(s.Consume(context.Background(), event.FanoutEvent{RoomID: "general", Message: message}))

	hits, err := index.Search(context.Background(), "general", "release")
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("m-42", hits[0].MessageID)
}
