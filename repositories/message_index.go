package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"room-sync/domain"
	"sort"
	"time"

	"github.com/blugelabs/bluge"
)

const (
	fieldID        = "_id"
	fieldRoom      = "room_id"
	fieldAuthor    = "author_id"
	fieldText      = "text"
	fieldLang      = "lang"
	fieldCreatedAt = "created_at"
)

type SearchHit struct {
	MessageID string        `json:"message_id"`
	RoomID    domain.RoomID `json:"room_id"`
	AuthorID  string        `json:"author_id"`
	Text      string        `json:"text"`
	Lang      string        `json:"lang,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Score     float64       `json:"score"`
}

// MessageIndex keeps a Bluge full-text index of confirmed messages.
// It is fed by the fanout pipeline and may briefly trail the store.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
	limit  int
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger, limit int) *MessageIndex {
	return &MessageIndex{writer: writer, log: log, limit: limit}
}

// Index upserts the message; indexing the same id twice keeps one document.
func (i *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID).
		AddField(bluge.NewKeywordField(fieldRoom, string(message.RoomID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldAuthor, message.AuthorID).StoreValue()).
		AddField(bluge.NewTextField(fieldText, message.Text).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, message.CreatedAt).StoreValue())
	if message.Lang != "" {
		doc.AddField(bluge.NewKeywordField(fieldLang, message.Lang).StoreValue())
	}
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

// Search returns the messages of a room matching the query, newest first.
func (i *MessageIndex) Search(ctx context.Context, roomID domain.RoomID, query string) ([]SearchHit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(fieldText)).
		AddMust(bluge.NewTermQuery(string(roomID)).SetField(fieldRoom))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(i.limit, q))
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := SearchHit{Score: match.Score}
		var decodeErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.MessageID = string(value)
			case fieldRoom:
				hit.RoomID = domain.RoomID(value)
			case fieldAuthor:
				hit.AuthorID = string(value)
			case fieldText:
				hit.Text = string(value)
			case fieldLang:
				hit.Lang = string(value)
			case fieldCreatedAt:
				hit.CreatedAt, decodeErr = bluge.DecodeDateTime(value)
			}
			return decodeErr == nil
		})
		if err != nil {
			return nil, err
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].CreatedAt.After(hits[b].CreatedAt)
	})
	return hits, nil
}
