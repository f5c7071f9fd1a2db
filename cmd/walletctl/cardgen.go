package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"wallet-gateway/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var cardNumberRe = regexp.MustCompile(`^[0-9]{16}$`)

// cardSpec is everything needed to provision one virtual card row.
type cardSpec struct {
	userID       uuid.UUID
	number       string
	pin          string
	dailyLimit   decimal.Decimal
	monthlyLimit decimal.Decimal
	expiry       time.Time
}

func cardgenCmd(c *cli) *cobra.Command {
	var (
		userID  string
		number  string
		pin     string
		daily   string
		monthly string
		months  int
	)

	cmd := &cobra.Command{
		Use:   "cardgen",
		Short: "Provision a virtual card and print its INSERT statement",
		Long: `Provision a virtual card for a user. The card number is sealed with the
configured card seal key, fingerprinted with the credential pepper and the PIN
is hashed; only those derived values appear in the printed SQL.

A random Luhn-valid number is generated when --number is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec := cardSpec{
				number: number,
				pin:    pin,
				expiry: time.Now().UTC().AddDate(0, months, 0),
			}
			var err error
			if spec.userID, err = uuid.Parse(userID); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			if spec.dailyLimit, err = decimal.NewFromString(daily); err != nil {
				return fmt.Errorf("invalid --daily: %w", err)
			}
			if spec.monthlyLimit, err = decimal.NewFromString(monthly); err != nil {
				return fmt.Errorf("invalid --monthly: %w", err)
			}
			if months <= 0 {
				return errors.New("--months must be positive")
			}
			if spec.number == "" {
				if spec.number, err = randomCardNumber(); err != nil {
					return err
				}
			}

			cfg, err := c.config()
			if err != nil {
				return err
			}
			stmt, err := cardInsert(spec, cfg.Security.CardSealKey, cfg.Security.CredentialPepper)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "card_number: %s\n\n", spec.number)
			fmt.Fprintln(out, stmt)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "owning user id")
	cmd.Flags().StringVar(&number, "number", "", "16-digit card number (random when empty)")
	cmd.Flags().StringVar(&pin, "pin", "", "4-digit card PIN")
	cmd.Flags().StringVar(&daily, "daily", "5000.00", "daily spending limit")
	cmd.Flags().StringVar(&monthly, "monthly", "20000.00", "monthly spending limit")
	cmd.Flags().IntVar(&months, "months", 36, "months until expiry")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pin")

	return cmd
}

func cardInsert(spec cardSpec, sealKey, pepper string) (string, error) {
	if !cardNumberRe.MatchString(spec.number) {
		return "", errors.New("card number must be exactly 16 digits")
	}
	if !spec.dailyLimit.IsPositive() || spec.monthlyLimit.LessThan(spec.dailyLimit) {
		return "", errors.New("limits must be positive and monthly must not be below daily")
	}
	if pepper == "" {
		return "", errors.New("security.credential_pepper is not configured")
	}

	sealer, err := service.NewAESEncryptionService(sealKey)
	if err != nil {
		return "", fmt.Errorf("card seal key: %w", err)
	}
	sealed, err := sealer.Encrypt(spec.number)
	if err != nil {
		return "", fmt.Errorf("sealing card number: %w", err)
	}
	pinHash, err := hashPin(spec.pin)
	if err != nil {
		return "", err
	}
	fingerprint := service.CardFingerprint(service.NewHMACSignatureService(), pepper, spec.number)

	return fmt.Sprintf(
		"INSERT INTO virtual_cards (id, user_id, card_fingerprint, card_number_enc, last4, pin_hash, daily_limit, monthly_limit, expiry_date) "+
			"VALUES ('%s', '%s', '%s', '%s', '%s', %s, %s, %s, '%s');",
		uuid.New(), spec.userID, fingerprint, sealed, spec.number[12:], sqlString(pinHash),
		spec.dailyLimit.StringFixed(2), spec.monthlyLimit.StringFixed(2), spec.expiry.Format(time.RFC3339),
	), nil
}

// randomCardNumber returns a 16-digit number with a valid Luhn check digit.
func randomCardNumber() (string, error) {
	digits := make([]byte, 15)
	digits[0] = '4'
	for i := 1; i < len(digits); i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating card number: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits) + string(rune('0'+luhnCheckDigit(string(digits)))), nil
}

func luhnCheckDigit(partial string) int {
	sum := 0
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
