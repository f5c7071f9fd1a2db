package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wallet-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrDuplicateReference is returned when a pending operation record collides with
// an existing (issuer, reference) pair at the storage layer.
var ErrDuplicateReference = errors.New("duplicate operation reference")

// Lookups return (nil, nil) when the row does not exist.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.

// UserRepository resolves counterparties by their unique lookup key.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CredentialRepository defines persistence operations for service credentials.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.ServiceCredential) error
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.ServiceCredential, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// WalletRepository defines persistence operations for wallets.
type WalletRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
}

// TransactionRepository defines persistence operations for wallet ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	// SumOutflowSince returns the absolute total of entries of type typ since the given time.
	SumOutflowSince(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, typ domain.TransactionType, since time.Time) (decimal.Decimal, error)
}

// PaymentRequestRepository defines persistence operations for merchant payment requests.
type PaymentRequestRepository interface {
	Create(ctx context.Context, tx pgx.Tx, pr *domain.PaymentRequest) error
}

// CardRepository defines persistence operations for virtual cards.
type CardRepository interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.VirtualCard, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.VirtualCard, error)
	GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*domain.VirtualCard, error)
	UpdateSpent(ctx context.Context, tx pgx.Tx, id uuid.UUID, daily, monthly decimal.Decimal) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.CardStatus) error
}

// CardTransactionRepository defines persistence operations for card ledger entries.
type CardTransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, ct *domain.VirtualCardTransaction) error
	// Record appends an entry outside any monetary transaction.
	Record(ctx context.Context, ct *domain.VirtualCardTransaction) error
	// ListByUser returns the user's entries newest first, optionally for one card.
	ListByUser(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID, limit, offset int) ([]domain.VirtualCardTransaction, error)
}

// OperationRepository persists idempotency records keyed by (issuer, reference).
type OperationRepository interface {
	Get(ctx context.Context, issuerID uuid.UUID, referenceID string) (*domain.OperationRecord, error)
	// InsertPending returns ErrDuplicateReference if the key already exists.
	InsertPending(ctx context.Context, tx pgx.Tx, rec *domain.OperationRecord) error
	Complete(ctx context.Context, tx pgx.Tx, issuerID uuid.UUID, referenceID string, response json.RawMessage) error
	// RecordFailure stores a failed record unless one already exists for the key.
	RecordFailure(ctx context.Context, rec *domain.OperationRecord) error
}

// WebhookLogRepository appends webhook delivery attempts.
type WebhookLogRepository interface {
	Create(ctx context.Context, log *domain.WebhookLog) error
}

// AuditRepository appends audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
