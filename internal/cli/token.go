package cli

import (
	"fmt"
	"os"
	"room-sync/auth"
	"time"

	"github.com/spf13/cobra"
)

// NewTokenCommand signs a development token. It needs the server secret.
func NewTokenCommand() *cobra.Command {
	var secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Sign an identity token with the server secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			issuer, err := auth.NewIssuer(secret, ttl)
			if err != nil {
				return err
			}
			token, err := issuer.GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
