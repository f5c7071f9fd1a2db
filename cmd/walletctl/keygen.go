package main

import (
	"errors"
	"fmt"

	"wallet-gateway/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func keygenCmd(c *cli) *cobra.Command {
	var (
		userID string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a service credential for a user",
		Long: `Generate a new API key and print the SQL that registers its fingerprint.

The key itself is shown once and never stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Security.CredentialPepper == "" {
				return errors.New("security.credential_pepper is not configured")
			}

			key, err := service.GenerateAPIKey()
			if err != nil {
				return err
			}
			fingerprint := service.CredentialFingerprint(service.NewHMACSignatureService(), cfg.Security.CredentialPepper, key)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "api_key:     %s\n", key)
			fmt.Fprintf(out, "fingerprint: %s\n\n", fingerprint)
			fmt.Fprintf(out,
				"INSERT INTO service_credentials (id, user_id, name, fingerprint) VALUES ('%s', '%s', %s, '%s');\n",
				uuid.New(), uid, sqlString(name), fingerprint)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "owning user id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "label for the credential")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
