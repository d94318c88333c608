package moderation

import (
	"log/slog"
	"room-sync/domain"
	"room-sync/projection"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newChatModerator(t *testing.T, words ...string) Moderator {
	t.Helper()
	mod, err := NewModerator(words, '#', logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	return mod
}

func TestModerator_Censor_Chat_Messages(t *testing.T) {
	mod := newChatModerator(t, "darn", "heck", "frak")

	tests := []struct {
		name  string
		text  string
		want  string
		found []string
	}{
		{
			name:  "clean message is posted as typed",
			text:  "see you at 6 in the lobby",
			want:  "see you at 6 in the lobby",
			found: nil,
		},
		{
			name:  "masked word keeps the message length",
			text:  "well darn, missed the train",
			want:  "well ####, missed the train",
			found: []string{"darn"},
		},
		{
			name:  "every occurrence is reported",
			text:  "heck no, heck yes",
			want:  "#### no, #### yes",
			found: []string{"heck", "heck"},
		},
		{
			name:  "spelled out with separators",
			text:  "what the f-r-a-k happened",
			want:  "what the ####### happened",
			found: []string{"frak"},
		},
		{
			name:  "substitutions and mixed case",
			text:  "H3CK, that hurt",
			want:  "####, that hurt",
			found: []string{"heck"},
		},
		{
			name:  "emoji and accents around a word",
			text:  "🙃 darn été",
			want:  "🙃 #### été",
			found: []string{"darn"},
		},
		{
			name:  "whitespace only message",
			text:  "   ",
			want:  "   ",
			found: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			text, found := mod.Censor(tt.text)
			req.Equal(tt.want, text)
			req.Equal(len([]rune(tt.text)), len([]rune(text)))
			req.Equal(tt.found, found)
		})
	}
}

func TestModerator_Punctuation_Words_Are_Ignored(t *testing.T) {
	req := require.New(t)

	// Given a word list polluted by separators
	mod := newChatModerator(t, "...", "--", "darn")

	// Then punctuation in messages is left alone
	text, found := mod.Censor("wait -- what?! darn")
	req.Equal("wait -- what?! ####", text)
	req.Equal([]string{"darn"}, found)

	// And a list with only separators censors nothing
	empty := newChatModerator(t, "--", " ")
	text, found = empty.Censor("darn -- fine")
	req.Equal("darn -- fine", text)
	req.Nil(found)
}

func TestModerator_Rewritten_Message_Still_Reconciles(t *testing.T) {
	req := require.New(t)
	mod := newChatModerator(t, "darn")
	timeline := projection.NewTimeline("general")

	// Given alice shows "well darn" as pending
	tempID := timeline.SendLocal("well darn", "alice")

	// When the server censors it before persisting
	text, found := mod.Censor("well darn")
	req.Equal([]string{"darn"}, found)
	confirmed := domain.Message{
		ID:        "m-7",
		RoomID:    "general",
		AuthorID:  "alice",
		Text:      text,
		CreatedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		State:     domain.Confirmed,
		ClientRef: tempID,
	}

	// Then the pending entry is replaced by the censored one
	req.True(timeline.OnConfirmed(confirmed))
	messages := timeline.Messages()
	req.Len(messages, 1)
	req.Equal("m-7", messages[0].ID)
	req.Equal("well ####", messages[0].Text)
	req.Zero(timeline.PendingCount())
}

func TestDetectLanguage(t *testing.T) {
	req := require.New(t)
	req.Equal("fr", DetectLanguage("Bonjour à tous, je suis très content de vous retrouver ce soir pour le dîner"))
	req.Equal("en", DetectLanguage("The quick brown fox jumps over the lazy dog while everyone is watching"))
}
