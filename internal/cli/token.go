package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mintline/edition_layer/internal/app/services/allocation"
	"github.com/mintline/edition_layer/internal/middleware"
)

type tokenOptions struct {
	user string
	role string
	ttl  time.Duration
}

// NewTokenCommand signs a bearer token for local use and testing.
func NewTokenCommand(root *RootOptions) *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			if opts.user == "" {
				return errors.New("--user is required")
			}
			role := allocation.ParseRole(opts.role)
			token, err := middleware.SignToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, opts.user, string(role), opts.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.user, "user", "", "user id placed in the token")
	cmd.Flags().StringVar(&opts.role, "role", "user", "role claim: admin, owner or user")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
