package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"room-sync/domain"
	"room-sync/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

var lines = []string{
	"hello there",
	"are we still on for tomorrow?",
	"sure, see you at ten",
	"can someone review the draft",
	"done, left a few comments",
	"lunch?",
	"on my way",
	"thanks!",
}

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	users := flag.Int("users", 4, "number of users (user-1..user-N)")
	messages := flag.Int("messages", 10, "messages per room")
	flag.Parse()

	if err := seed(*dbPath, *users, *messages); err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

// seed creates one room per pair of users and fills it with messages
// alternating between the two members.
func seed(dbPath string, users, messages int) error {
	logger := logs.GetLoggerFromLevel(slog.LevelInfo)
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	repository := repositories.NewRoomRepository(db, logger)
	ids := lo.Times(users, func(i int) string { return fmt.Sprintf("user-%d", i+1) })

	for i, a := range ids {
		for _, b := range ids[i+1:] {
			room, err := repository.CreateRoom(ctx, "", []string{a, b})
			if err != nil {
				return err
			}
			for n := range messages {
				author := lo.Ternary(n%2 == 0, a, b)
				if _, err := repository.AppendMessage(ctx, room.ID, domain.Message{
					AuthorID: author,
					Text:     lines[rand.IntN(len(lines))],
					State:    domain.Pending,
				}); err != nil {
					return err
				}
			}
			logger.Info("Room seeded", "room_id", room.ID, "members", room.MemberIDs, "messages", messages)
		}
	}
	return nil
}
