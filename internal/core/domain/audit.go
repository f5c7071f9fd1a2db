package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCardValidate   AuditAction = "card.validate"
	AuditActionCardCharge     AuditAction = "card.charge"
	AuditActionCardLimits     AuditAction = "card.limits"
	AuditActionCardDeactivate AuditAction = "card.deactivate"
	AuditActionPaymentCreate  AuditAction = "payment.create"
	AuditActionTransferCreate AuditAction = "transfer.create"
	AuditActionAuthFailure    AuditAction = "auth.failure"
)

// AuditOutcome is the result recorded for an audited action.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
)

// AuditLog records a single audited action in the system. Metadata never
// contains PINs, full card numbers or API keys.
type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	Action     AuditAction     `json:"action"`
	Outcome    AuditOutcome    `json:"outcome"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
