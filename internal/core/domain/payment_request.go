package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest is one merchant-initiated charge against a user's wallet.
// (IssuerID, ExternalOrderID) is unique.
type PaymentRequest struct {
	ID              uuid.UUID         `json:"id"`
	IssuerID        uuid.UUID         `json:"issuer_id"`
	ExternalOrderID string            `json:"external_order_id"`
	UserID          uuid.UUID         `json:"user_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Description     *string           `json:"description,omitempty"`
	Status          TransactionStatus `json:"status"`
	CallbackURL     *string           `json:"callback_url,omitempty"`
	Metadata        json.RawMessage   `json:"metadata,omitempty"`
	TransactionID   *uuid.UUID        `json:"transaction_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
