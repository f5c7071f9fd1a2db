package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardStatus represents the lifecycle state of a virtual card.
// Only active authorizes anything; reactivation happens elsewhere.
type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusInactive CardStatus = "inactive"
	CardStatusBlocked  CardStatus = "blocked"
	CardStatusExpired  CardStatus = "expired"
)

// VirtualCard is a spend instrument owned by one user. The card number is only
// kept sealed; lookups go through Fingerprint.
type VirtualCard struct {
	ID                  uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	Fingerprint         string          `json:"-"`
	NumberSealed        string          `json:"-"`
	Last4               string          `json:"last4"`
	PinHash             string          `json:"-"`
	Status              CardStatus      `json:"status"`
	DailyLimit          decimal.Decimal `json:"daily_limit"`
	MonthlyLimit        decimal.Decimal `json:"monthly_limit"`
	CurrentDailySpent   decimal.Decimal `json:"current_daily_spent"`
	CurrentMonthlySpent decimal.Decimal `json:"current_monthly_spent"`
	ExpiryDate          time.Time       `json:"expiry_date"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsExpired returns true if the card is marked expired or its expiry date has passed.
func (c *VirtualCard) IsExpired(now time.Time) bool {
	return c.Status == CardStatusExpired || now.After(c.ExpiryDate)
}

// DailyRemaining is the amount still spendable today.
func (c *VirtualCard) DailyRemaining() decimal.Decimal {
	return c.DailyLimit.Sub(c.CurrentDailySpent)
}

// MonthlyRemaining is the amount still spendable this month.
func (c *VirtualCard) MonthlyRemaining() decimal.Decimal {
	return c.MonthlyLimit.Sub(c.CurrentMonthlySpent)
}

// MaskedNumber renders the card number with everything but the last four digits hidden.
func (c *VirtualCard) MaskedNumber() string {
	return "************" + c.Last4
}

// CardTransactionType represents the kind of event recorded against a card.
type CardTransactionType string

const (
	CardTransactionPurchase     CardTransactionType = "purchase"
	CardTransactionValidation   CardTransactionType = "validation"
	CardTransactionDeactivation CardTransactionType = "deactivation"
)

// VirtualCardTransaction is an immutable record of one card event.
type VirtualCardTransaction struct {
	ID           uuid.UUID           `json:"id"`
	CardID       uuid.UUID           `json:"card_id"`
	UserID       uuid.UUID           `json:"user_id"`
	Type         CardTransactionType `json:"type"`
	Amount       decimal.Decimal     `json:"amount"`
	Status       TransactionStatus   `json:"status"`
	ReferenceID  string              `json:"reference_id"`
	Description  *string             `json:"description,omitempty"`
	MerchantInfo json.RawMessage     `json:"merchant_info,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
