package projection

import (
	"room-sync/domain"
	"room-sync/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// fixedClock returns t0, t0+1s, t0+2s... on successive calls.
func fixedClock() func() time.Time {
	next := t0
	return func() time.Time {
		current := next
		next = next.Add(time.Second)
		return current
	}
}

func confirmed(id, author, text string, at time.Time) domain.Message {
	return domain.Message{ID: id, RoomID: "general", AuthorID: author, Text: text, CreatedAt: at, State: domain.Confirmed}
}

func ids(messages []domain.Message) []string {
	var res []string
	for _, m := range messages {
		res = append(res, m.ID)
	}
	return res
}

func TestTimeline_Scenario_General(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())

	// Given an empty room and a local send
	tempID := timeline.SendLocal("hello", "alice")
	req.True(domain.IsTemporary(tempID))
	req.Len(timeline.Messages(), 1)
	req.Equal(domain.Pending, timeline.Messages()[0].State)

	// When the fanout event for the persisted message arrives
	at := t0.Add(500 * time.Millisecond)
	changed := timeline.OnConfirmed(confirmed("m-42", "alice", "hello", at))

	// Then one confirmed message is visible
	req.True(changed)
	messages := timeline.Messages()
	req.Len(messages, 1)
	req.Equal("m-42", messages[0].ID)
	req.Equal("hello", messages[0].Text)
	req.Equal(domain.Confirmed, messages[0].State)
	req.Zero(timeline.PendingCount())
}

func TestTimeline_Idempotent_Confirmation(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())
	timeline.SendLocal("hi", "alice")

	message := confirmed("m-1", "alice", "hi", t0.Add(time.Second))
	req.True(timeline.OnConfirmed(message))
	after := timeline.Messages()

	// Both the send response and the push deliver the same message
	req.False(timeline.OnConfirmed(message))
	req.False(timeline.OnConfirmed(message))
	req.Equal(after, timeline.Messages())
}

func TestTimeline_Reconciliation_Replaces(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())
	timeline.OnConfirmed(confirmed("m-0", "bob", "before", t0.Add(-time.Minute)))
	timeline.SendLocal("hi", "alice")
	req.Len(timeline.Messages(), 2)

	timeline.OnConfirmed(confirmed("m-1", "alice", "hi", t0.Add(time.Second)))

	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal([]string{"m-0", "m-1"}, ids(messages))
	req.Equal(domain.Confirmed, messages[1].State)
}

func TestTimeline_FIFO_Tie_Break(t *testing.T) {
	tests := []struct {
		name  string
		order []string
	}{
		{"Confirmations in send order", []string{"m-1", "m-2"}},
		{"Confirmations reversed", []string{"m-2", "m-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			timeline := NewTimeline("general").WithClock(fixedClock())

			// Given two identical sends from alice
			first := timeline.SendLocal("again", "alice")
			second := timeline.SendLocal("again", "alice")
			req.NotEqual(first, second)

			durable := map[string]domain.Message{
				"m-1": confirmed("m-1", "alice", "again", t0.Add(10*time.Second)),
				"m-2": confirmed("m-2", "alice", "again", t0.Add(11*time.Second)),
			}

			// When the first confirmation arrives, it replaces the oldest pending entry
			timeline.OnConfirmed(durable[tt.order[0]])
			messages := timeline.Messages()
			req.Len(messages, 2)
			pending := messages[0]
			if pending.State == domain.Confirmed {
				pending = messages[1]
			}
			req.Equal(second, pending.ID)

			// Then both end up confirmed, no duplicates, in server order
			timeline.OnConfirmed(durable[tt.order[1]])
			req.Equal([]string{"m-1", "m-2"}, ids(timeline.Messages()))
			req.Zero(timeline.PendingCount())
		})
	}
}

func TestTimeline_ClientRef_Wins_Over_Text(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())

	// Given two pending sends, the second one censored by the server
	timeline.SendLocal("a badger here", "alice")
	censoredSend := timeline.SendLocal("a badger here", "alice")

	message := confirmed("m-9", "alice", "a ****** here", t0.Add(5*time.Second))
	message.ClientRef = censoredSend
	req.True(timeline.OnConfirmed(message))

	// Then the referenced entry is replaced, not the oldest text match
	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal(domain.Pending, messages[0].State)
	req.Equal("m-9", messages[1].ID)
	req.Equal("a ****** here", messages[1].Text)
}

func TestTimeline_Unknown_ClientRef_Appends(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())
	timeline.SendLocal("hi", "alice")

	// A confirmation from another device of alice
	message := confirmed("m-3", "alice", "hi", t0.Add(3*time.Second))
	message.ClientRef = "temp-elsewhere"
	timeline.OnConfirmed(message)

	req.Len(timeline.Messages(), 2)
	req.Equal(1, timeline.PendingCount())
}

func TestTimeline_Ordering_Invariant(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())

	// Given pending sends and messages from others arriving out of order
	a := timeline.SendLocal("a", "alice")
	b := timeline.SendLocal("b", "alice")
	timeline.OnConfirmed(confirmed("m-bob-2", "bob", "late", t0.Add(20*time.Second)))
	timeline.OnConfirmed(confirmed("m-bob-1", "bob", "early", t0.Add(-20*time.Second)))

	// When the server stamps the sends after the local clock
	ma := confirmed("m-a", "alice", "a", t0.Add(30*time.Second))
	ma.ClientRef = a
	mb := confirmed("m-b", "alice", "b", t0.Add(31*time.Second))
	mb.ClientRef = b
	timeline.OnConfirmed(ma)
	timeline.OnConfirmed(mb)

	// Then the list is chronological
	messages := timeline.Messages()
	req.Equal([]string{"m-bob-1", "m-bob-2", "m-a", "m-b"}, ids(messages))
	for i := 1; i < len(messages); i++ {
		req.False(messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func TestTimeline_Failed_Send_Cleanup(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())
	kept := timeline.SendLocal("kept", "alice")
	tempID := timeline.SendLocal("lost", "alice")

	err := timeline.OnSendFailed(tempID)

	req.ErrorIs(err, errors.ErrTransientNetwork)
	req.True(errors.Retryable(err))
	req.Equal([]string{kept}, ids(timeline.Messages()))
}

func TestTimeline_Reset_Drops_Pending(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general").WithClock(fixedClock())
	timeline.SendLocal("never confirmed", "alice")

	timeline.Reset([]domain.Message{
		confirmed("m-2", "bob", "two", t0.Add(2*time.Second)),
		confirmed("m-1", "bob", "one", t0.Add(time.Second)),
	})

	req.Equal([]string{"m-1", "m-2"}, ids(timeline.Messages()))
	req.Zero(timeline.PendingCount())
}

func TestTimeline_Ignores_Other_Rooms(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("general")
	message := confirmed("m-1", "bob", "hi", t0)
	message.RoomID = "random"

	req.False(timeline.OnConfirmed(message))
	req.Empty(timeline.Messages())
}
