package main

import (
	"fmt"
	"os"

	"wallet-gateway/config"
	"wallet-gateway/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the flags shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "walletctl - operator tooling for the wallet gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd(c))
	rootCmd.AddCommand(keygenCmd(c))
	rootCmd.AddCommand(pinhashCmd())
	rootCmd.AddCommand(tokenCmd(c))
	rootCmd.AddCommand(cardgenCmd(c))

	return rootCmd
}

func (c *cli) config() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func (c *cli) logger() zerolog.Logger {
	return logger.NewWithWriter(c.logLevel, os.Stderr)
}
