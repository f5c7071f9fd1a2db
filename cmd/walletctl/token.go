package main

import (
	"errors"
	"fmt"
	"time"

	"wallet-gateway/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func tokenCmd(c *cli) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Security.SessionSecret == "" {
				return errors.New("security.session_secret is not configured")
			}

			token, expiresAt, err := service.NewJWTSessionService(cfg.Security.SessionSecret, cfg.Security.SessionIssuer).Issue(uid, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id the session acts for")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
