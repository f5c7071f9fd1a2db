package main

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"wallet-gateway/internal/service"

	"github.com/spf13/cobra"
)

var pinRe = regexp.MustCompile(`^[0-9]{4}$`)

func pinhashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pinhash [pin]",
		Short: "Print the argon2id hash of a 4-digit PIN",
		Long: `Print the argon2id hash of a 4-digit PIN for seeding wallets and cards.

The PIN is read from the first argument or, when absent, from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := readPin(cmd, args)
			if err != nil {
				return err
			}
			hash, err := hashPin(pin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func readPin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("provide the PIN as an argument or on stdin")
	}
	return strings.TrimSpace(line), nil
}

func hashPin(pin string) (string, error) {
	if !pinRe.MatchString(pin) {
		return "", errors.New("PIN must be exactly 4 digits")
	}
	hash, err := service.NewArgon2HashService().Hash(pin)
	if err != nil {
		return "", fmt.Errorf("hashing pin: %w", err)
	}
	return hash, nil
}
