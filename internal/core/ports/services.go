package ports

import (
	"context"
	"encoding/json"
	"time"

	"wallet-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---- Infrastructure ports ----

// EncryptionService handles AES-256-GCM sealing of data kept at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles PIN hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// SessionVerifier resolves a bearer session token issued by the identity provider.
type SessionVerifier interface {
	Verify(token string) (*SessionClaims, error)
}

// SessionClaims holds the parsed session token claims.
type SessionClaims struct {
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// InFlightGuard marks a reference as being processed by exactly one request.
type InFlightGuard interface {
	// Acquire claims key under token. Returns false if another request holds the key.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release drops the claim only if it is still held under token.
	Release(ctx context.Context, key, token string) error
}

// IdempotencyCache is the Redis-layer replay cache (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventPublisher publishes outcome and audit events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Metrics receives business-level observations.
type Metrics interface {
	ObserveOperation(kind domain.OperationKind, outcome string)
	ObserveReplay(kind domain.OperationKind)
	ObserveWebhook(result string)
}

// ---- Service ports ----

// CredentialGate resolves request headers to exactly one principal.
type CredentialGate interface {
	Resolve(ctx context.Context, apiKey, authorization string) (*domain.Principal, error)
}

// WebhookNotifier delivers operation outcomes without blocking the caller.
type WebhookNotifier interface {
	Notify(target string, payload domain.WebhookPayload)
}

// AuditSink records audit entries asynchronously.
type AuditSink interface {
	Record(entry *domain.AuditLog)
}

// PaymentService executes merchant-initiated wallet charges.
type PaymentService interface {
	Pay(ctx context.Context, principal domain.Principal, req PaymentInput) (*PaymentResult, error)
}

// PaymentInput holds validated input for a merchant payment.
type PaymentInput struct {
	ExternalOrderID string
	UserEmail       string
	Amount          decimal.Decimal
	Description     *string
	CallbackURL     *string
	Metadata        json.RawMessage
	UserPin         *string
	ClientIP        string
	UserAgent       string
}

// PaymentResult is the wire body of a successful merchant payment.
type PaymentResult struct {
	Success          bool            `json:"success"`
	PaymentRequestID uuid.UUID       `json:"payment_request_id"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	ReferenceID      string          `json:"reference_id"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	PinVerified      bool            `json:"pin_verified"`
	Message          string          `json:"message"`
	Replayed         bool            `json:"-"`
}

// TransferService executes peer-to-peer transfers.
type TransferService interface {
	Transfer(ctx context.Context, principal domain.Principal, req TransferInput) (*TransferResult, error)
}

// TransferInput holds validated input for a peer transfer.
type TransferInput struct {
	RecipientEmail string
	Amount         decimal.Decimal
	Description    *string
	UserPin        *string
	IdempotencyKey string // optional, overrides the generated reference
	ClientIP       string
	UserAgent      string
}

// TransferData is the payload of a successful transfer.
type TransferData struct {
	TransactionID       uuid.UUID       `json:"transaction_id"`
	ReferenceID         string          `json:"reference_id"`
	SenderNewBalance    decimal.Decimal `json:"sender_new_balance"`
	RecipientNewBalance decimal.Decimal `json:"recipient_new_balance"`
	PinVerified         bool            `json:"pin_verified"`
	DailyLimitRemaining decimal.Decimal `json:"daily_limit_remaining"`
}

// TransferResult is the wire body of a successful transfer.
type TransferResult struct {
	Success  bool         `json:"success"`
	Data     TransferData `json:"data"`
	Replayed bool         `json:"-"`
}

// CardMode selects between a side-effect-free check and a billable charge.
type CardMode int

const (
	CardModeValidate CardMode = iota
	CardModeCharge
)

func (m CardMode) String() string {
	if m == CardModeCharge {
		return "charge"
	}
	return "validate"
}

// CardService validates and charges virtual cards.
type CardService interface {
	Validate(ctx context.Context, principal domain.Principal, req CardInput) (*CardResult, error)
	Charge(ctx context.Context, principal domain.Principal, req CardInput) (*CardResult, error)
	Limits(ctx context.Context, principal domain.Principal, cardID uuid.UUID, amount decimal.Decimal) (*CardLimitsResult, error)
	Deactivate(ctx context.Context, principal domain.Principal, req CardDeactivateInput) (*CardDeactivateResult, error)
	History(ctx context.Context, principal domain.Principal, query CardHistoryQuery) (*CardHistoryResult, error)
}

// CardDeactivateInput names the principal's card to take out of service.
type CardDeactivateInput struct {
	CardID         uuid.UUID
	Reason         *string
	IPAddress      string
	UserAgent      string
	IdempotencyKey string
}

// CardDeactivateResult is the wire body of a successful deactivation.
type CardDeactivateResult struct {
	Success       bool              `json:"success"`
	CardID        uuid.UUID         `json:"card_id"`
	Status        domain.CardStatus `json:"status"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	ReferenceID   string            `json:"reference_id"`
	DeactivatedAt time.Time         `json:"deactivated_at"`
	Replayed      bool              `json:"-"`
}

// CardHistoryQuery pages through the principal's card records.
type CardHistoryQuery struct {
	CardID *uuid.UUID
	Limit  int
	Offset int
}

// CardHistoryResult is one page of card records, newest first.
type CardHistoryResult struct {
	Success      bool                            `json:"success"`
	Transactions []domain.VirtualCardTransaction `json:"transactions"`
	Limit        int                             `json:"limit"`
	Offset       int                             `json:"offset"`
}

// CardInput holds the presented card credentials and optional charge context.
type CardInput struct {
	CardNumber     string
	Pin            string
	Amount         *decimal.Decimal
	MerchantID     string
	IPAddress      string
	UserAgent      string
	IdempotencyKey string
}

// CardResult is the wire body of a successful validation or charge.
type CardResult struct {
	Success          bool              `json:"success"`
	CardID           uuid.UUID         `json:"card_id"`
	Status           domain.CardStatus `json:"status"`
	DailyLimit       decimal.Decimal   `json:"daily_limit"`
	MonthlyLimit     decimal.Decimal   `json:"monthly_limit"`
	DailySpent       decimal.Decimal   `json:"daily_spent"`
	MonthlySpent     decimal.Decimal   `json:"monthly_spent"`
	DailyRemaining   decimal.Decimal   `json:"daily_remaining"`
	MonthlyRemaining decimal.Decimal   `json:"monthly_remaining"`
	ValidatedAt      time.Time         `json:"validated_at"`

	// Charge only.
	TransactionID   *uuid.UUID       `json:"transaction_id,omitempty"`
	ReferenceID     string           `json:"reference_id,omitempty"`
	AmountCharged   *decimal.Decimal `json:"amount_charged,omitempty"`
	NewDailySpent   *decimal.Decimal `json:"new_daily_spent,omitempty"`
	NewMonthlySpent *decimal.Decimal `json:"new_monthly_spent,omitempty"`

	Replayed bool `json:"-"`
}

// CardLimitsResult reports whether an amount would fit the card's remaining limits.
type CardLimitsResult struct {
	Success          bool            `json:"success"`
	Valid            bool            `json:"valid"`
	Error            string          `json:"error,omitempty"`
	DailyLimit       decimal.Decimal `json:"daily_limit"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	DailySpent       decimal.Decimal `json:"daily_spent"`
	MonthlySpent     decimal.Decimal `json:"monthly_spent"`
	DailyRemaining   decimal.Decimal `json:"daily_remaining"`
	MonthlyRemaining decimal.Decimal `json:"monthly_remaining"`
}
