package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind names the pipeline that produced an operation record.
type OperationKind string

const (
	OperationMerchantPayment OperationKind = "merchant_payment"
	OperationTransfer        OperationKind = "transfer"
	OperationCardCharge      OperationKind = "card_charge"
	OperationCardDeactivate  OperationKind = "card_deactivation"
)

// OperationStatus is the idempotency state of a reference id.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// OperationRecord is the durable source of truth for what committed under
// (IssuerID, ReferenceID).
type OperationRecord struct {
	IssuerID    uuid.UUID       `json:"issuer_id"`
	ReferenceID string          `json:"reference_id"`
	Kind        OperationKind   `json:"kind"`
	Status      OperationStatus `json:"status"`
	Response    json.RawMessage `json:"response,omitempty"` // Serialized success body for replay
	ErrorCode   *string         `json:"error_code,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BuildIdempotencyKey constructs the cache key scoping a reference to its issuer.
func BuildIdempotencyKey(issuerID uuid.UUID, referenceID string) string {
	return issuerID.String() + ":" + referenceID
}

// BuildReplayKey scopes a replay-cache entry to the kind that produced it.
func BuildReplayKey(kind OperationKind, issuerID uuid.UUID, referenceID string) string {
	return string(kind) + ":" + BuildIdempotencyKey(issuerID, referenceID)
}

// TransferReference generates the reference id of a keyless peer transfer.
// Every call returns a fresh id, even for the same sender and millisecond.
func TransferReference(now time.Time, senderID uuid.UUID) string {
	return fmt.Sprintf("TRF_%d_%s_%s", now.UnixMilli(), shortID(senderID), nonce())
}

// ChargeReference generates the reference id of a keyless card charge.
func ChargeReference(now time.Time, cardID uuid.UUID) string {
	return fmt.Sprintf("PAY_%d_%s_%s", now.UnixMilli(), shortID(cardID), nonce())
}

// DeactivationReference generates the reference id of a keyless card deactivation.
func DeactivationReference(now time.Time, cardID uuid.UUID) string {
	return fmt.Sprintf("DEA_%d_%s_%s", now.UnixMilli(), shortID(cardID), nonce())
}

// ValidationReference generates the reference id of a card validation record.
func ValidationReference(now time.Time, cardID uuid.UUID) string {
	return fmt.Sprintf("VAL_%d_%s_%s", now.UnixMilli(), shortID(cardID), nonce())
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// nonce is 48 random bits from a v4 uuid.
func nonce() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}
