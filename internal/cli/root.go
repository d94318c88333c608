// Package cli implements the room-sync terminal client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"room-sync/auth"
	"room-sync/client"
	"room-sync/gateway"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

// Config is read from the environment, flags take precedence.
type Config struct {
	ServerAddr string `env:"CHAT_SERVER_ADDR,default=ws://localhost:8080/ws"`
	Token      string `env:"CHAT_TOKEN"`
	LogLevel   string `env:"LOG_LEVEL,default=WARN"`
}

type RootOptions struct {
	Config
	Timeout time.Duration
	log     *slog.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	var flags Config

	cmd := &cobra.Command{
		Use:           "room-sync",
		Short:         "Terminal client for room-sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			if _, err := env.UnmarshalFromEnviron(&opts.Config); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cmd.Flags().Changed("server") {
				opts.ServerAddr = flags.ServerAddr
			}
			if cmd.Flags().Changed("token") {
				opts.Token = flags.Token
			}
			if cmd.Flags().Changed("log-level") {
				opts.LogLevel = flags.LogLevel
			}
			opts.log = logs.GetLoggerFromString(opts.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ServerAddr, "server", "", "gateway address (CHAT_SERVER_ADDR)")
	cmd.PersistentFlags().StringVar(&flags.Token, "token", "", "identity token (CHAT_TOKEN)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level (LOG_LEVEL)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "timeout of each request")

	cmd.AddCommand(NewRoomsCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewTokenCommand())

	return cmd
}

// session is one authenticated connection with its controller.
type session struct {
	conn       *gateway.Client
	controller *client.Controller
}

func (o *RootOptions) connect(ctx context.Context) (*session, error) {
	if o.Token == "" {
		return nil, fmt.Errorf("no token: set CHAT_TOKEN or --token")
	}
	identity, err := auth.PeekIdentity(o.Token)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	conn, err := gateway.Dial(dialCtx, o.ServerAddr, o.Token, o.log)
	if err != nil {
		return nil, err
	}
	return &session{
		conn:       conn,
		controller: client.NewController(identity, conn, conn, o.log),
	}, nil
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.controller.Close(ctx)
	_ = s.conn.Close()
}
