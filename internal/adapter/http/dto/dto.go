package dto

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLength caps free-text descriptions after cleaning.
const MaxDescriptionLength = 500

// PaymentRequest is the request body for POST /api/v1/payments.
// Required fields are checked by Missing so the caller gets MISSING_FIELDS.
type PaymentRequest struct {
	ExternalOrderID string           `json:"external_order_id" binding:"omitempty,order_id"`
	UserEmail       string           `json:"user_email" binding:"omitempty,email,max=254"`
	Amount          *decimal.Decimal `json:"amount" binding:"omitempty,money"`
	Description     *string          `json:"description,omitempty"`
	CallbackURL     *string          `json:"callback_url,omitempty" binding:"omitempty,safe_url"`
	Metadata        json.RawMessage  `json:"metadata,omitempty" binding:"omitempty,json_object"`
	UserPin         *string          `json:"user_pin,omitempty" binding:"omitempty,pin4"`
}

// Missing returns the names of absent required fields.
func (r *PaymentRequest) Missing() []string {
	return missing(map[string]bool{
		"external_order_id": r.ExternalOrderID == "",
		"user_email":        r.UserEmail == "",
		"amount":            r.Amount == nil,
	})
}

// TransferRequest is the request body for POST /api/v1/transfers.
type TransferRequest struct {
	RecipientEmail string           `json:"recipient_email" binding:"omitempty,email,max=254"`
	Amount         *decimal.Decimal `json:"amount" binding:"omitempty,money"`
	Description    *string          `json:"description,omitempty"`
	UserPin        *string          `json:"user_pin,omitempty" binding:"omitempty,pin4"`
}

func (r *TransferRequest) Missing() []string {
	return missing(map[string]bool{
		"recipient_email": r.RecipientEmail == "",
		"amount":          r.Amount == nil,
	})
}

// CardRequest is the request body for POST /api/v1/cards/validate and /charge.
// Format errors on the card number and PIN are reported by the card service.
type CardRequest struct {
	CardNumber string           `json:"card_number"`
	Pin        string           `json:"pin"`
	Amount     *decimal.Decimal `json:"amount,omitempty" binding:"omitempty,money"`
	MerchantID string           `json:"merchant_id,omitempty" binding:"omitempty,max=100"`
	IPAddress  string           `json:"ip_address,omitempty" binding:"omitempty,ip"`
	UserAgent  string           `json:"user_agent,omitempty" binding:"omitempty,max=512"`
}

func (r *CardRequest) Missing() []string {
	return missing(map[string]bool{
		"card_number": r.CardNumber == "",
		"pin":         r.Pin == "",
	})
}

// CardLimitsRequest is the request body for POST /api/v1/cards/limits.
type CardLimitsRequest struct {
	CardID string           `json:"card_id" binding:"omitempty,uuid"`
	Amount *decimal.Decimal `json:"amount,omitempty" binding:"omitempty,money"`
}

func (r *CardLimitsRequest) Missing() []string {
	return missing(map[string]bool{"card_id": r.CardID == ""})
}

// CardDeactivateRequest is the request body for POST /api/v1/cards/deactivate.
type CardDeactivateRequest struct {
	CardID    string  `json:"card_id" binding:"omitempty,uuid"`
	Reason    *string `json:"reason,omitempty" binding:"omitempty,max=255"`
	IPAddress string  `json:"ip_address,omitempty" binding:"omitempty,ip"`
	UserAgent string  `json:"user_agent,omitempty" binding:"omitempty,max=512"`
}

func (r *CardDeactivateRequest) Missing() []string {
	return missing(map[string]bool{"card_id": r.CardID == ""})
}

// CardHistoryRequest is the request body for POST /api/v1/cards/transactions.
type CardHistoryRequest struct {
	CardID string `json:"card_id,omitempty" binding:"omitempty,uuid"`
	Limit  int    `json:"limit,omitempty" binding:"omitempty,min=1,max=100"`
	Offset int    `json:"offset,omitempty" binding:"omitempty,min=0"`
}

func (r *CardHistoryRequest) Missing() []string { return nil }
