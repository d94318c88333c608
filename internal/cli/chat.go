package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"room-sync/client"
	"room-sync/domain"
	"room-sync/errors"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

func NewChatCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <room>",
		Short: "Open a room: every line read from stdin is sent, /quit leaves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.controller.Start(ctx); err != nil {
				return err
			}
			if err := s.controller.EnterRoom(ctx, domain.RoomID(args[0])); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			t := newTranscript(s.controller.Identity().UserID)
			go func() {
				for view := range s.controller.Views() {
					t.render(out, view)
				}
			}()

			lines := readLines(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-s.conn.Done():
					return fmt.Errorf("connection lost: %w", errors.ErrTransientNetwork)
				case line, ok := <-lines:
					if !ok || line == "/quit" {
						return nil
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					sendCtx, cancelSend := context.WithTimeout(ctx, opts.Timeout)
					_, err := s.controller.Send(sendCtx, line)
					cancelSend()
					if err != nil {
						fmt.Fprintln(out, color.Red.Sprintf("not sent: %v", err))
					}
				}
			}
		},
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// transcript prints each confirmed message once, in the order views
// reveal them. Pending entries are what the user just typed and are not
// echoed.
type transcript struct {
	self    string
	printed map[string]struct{}
	state   client.State
}

func newTranscript(self string) *transcript {
	return &transcript{self: self, printed: make(map[string]struct{}), state: client.Idle}
}

func (t *transcript) render(w io.Writer, view client.View) {
	if view.State != t.state {
		t.state = view.State
		if view.State == client.Error {
			fmt.Fprintln(w, color.Red.Sprintf("room %s unavailable: %v", view.RoomID, view.Err))
		}
	}
	for _, message := range view.Messages {
		if message.IsPending() {
			continue
		}
		if _, ok := t.printed[message.ID]; ok {
			continue
		}
		t.printed[message.ID] = struct{}{}
		fmt.Fprintln(w, formatMessage(message, t.self))
	}
}
