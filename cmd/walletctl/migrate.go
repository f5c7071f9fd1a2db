package main

import (
	"fmt"

	pgStorage "wallet-gateway/internal/adapter/storage/postgres"

	"github.com/spf13/cobra"
)

var migrateCommands = map[string]bool{"up": true, "down": true, "status": true}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Run the embedded database migrations",
		Long: `Run the embedded goose migrations against the configured database.

Examples:
  walletctl migrate up
  walletctl migrate status --config ./config/config.yaml`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			if !migrateCommands[command] {
				return fmt.Errorf("unknown migrate command %q (want up, down or status)", command)
			}

			cfg, err := c.config()
			if err != nil {
				return err
			}
			return pgStorage.RunMigrations(cmd.Context(), cfg.Database.DSN(), command, c.logger())
		},
	}
}
