package cli

import (
	"context"
	"fmt"
	"room-sync/domain"
	"strings"

	"github.com/spf13/cobra"
)

func NewRoomsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List your rooms, most recent activity first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			if err := s.controller.RefreshRooms(ctx); err != nil {
				return err
			}
			renderRooms(cmd.OutOrStdout(), s.controller.Current().RoomList)
			return nil
		},
	}
}

func NewCreateCommand(opts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <member> [member...]",
		Short: "Create a room with the given members, or find the existing one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			room, err := s.conn.CreateRoom(ctx, name, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", room.ID, strings.Join(room.MemberIDs, ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "room display name")
	return cmd
}

func NewSearchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <room> <query...>",
		Short: "Search the messages of a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			hits, err := s.conn.Search(ctx, domain.RoomID(args[0]), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			renderHits(cmd.OutOrStdout(), hits)
			return nil
		},
	}
}
