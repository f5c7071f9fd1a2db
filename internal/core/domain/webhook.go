package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WebhookPayload is the body POSTed to a caller-supplied callback URL.
type WebhookPayload struct {
	ExternalOrderID  string            `json:"external_order_id,omitempty"`
	PaymentRequestID *uuid.UUID        `json:"payment_request_id,omitempty"`
	TransactionID    uuid.UUID         `json:"transaction_id"`
	ReferenceID      string            `json:"reference_id"`
	Amount           decimal.Decimal   `json:"amount"`
	Status           TransactionStatus `json:"status"`
	Timestamp        time.Time         `json:"timestamp"`
	Metadata         json.RawMessage   `json:"metadata,omitempty"`
}

// WebhookLog records one delivery attempt. Append-only.
type WebhookLog struct {
	ID               uuid.UUID       `json:"id"`
	PaymentRequestID *uuid.UUID      `json:"payment_request_id,omitempty"`
	ReferenceID      string          `json:"reference_id"`
	URL              string          `json:"url"`
	Payload          json.RawMessage `json:"payload"`
	Success          bool            `json:"success"`
	ResponseStatus   *int            `json:"response_status,omitempty"`
	ResponseBody     *string         `json:"response_body,omitempty"`
	Error            *string         `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
