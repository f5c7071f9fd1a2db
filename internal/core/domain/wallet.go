package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the single balance a user owns.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	PinHash   *string         `json:"-"` // Argon2id, never expose
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RequiresPin returns true if the owner protected the wallet with a PIN.
func (w *Wallet) RequiresPin() bool {
	return w.PinHash != nil && *w.PinHash != ""
}
