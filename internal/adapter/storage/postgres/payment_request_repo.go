package postgres

import (
	"context"
	"fmt"

	"wallet-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// PaymentRequestRepo implements ports.PaymentRequestRepository.
type PaymentRequestRepo struct {
	pool Pool
}

// NewPaymentRequestRepo creates a new PaymentRequestRepo.
func NewPaymentRequestRepo(pool Pool) *PaymentRequestRepo {
	return &PaymentRequestRepo{pool: pool}
}

// Create inserts a payment request within a database transaction.
// A second request for the same (issuer, external order) yields ports.ErrDuplicateReference.
func (r *PaymentRequestRepo) Create(ctx context.Context, tx pgx.Tx, pr *domain.PaymentRequest) error {
	query := `INSERT INTO payment_requests (id, issuer_id, external_order_id, user_id, amount, description,
		status, callback_url, metadata, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		pr.ID, pr.IssuerID, pr.ExternalOrderID, pr.UserID, pr.Amount, pr.Description,
		string(pr.Status), pr.CallbackURL, nullableJSON(pr.Metadata), pr.TransactionID, pr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", translateUnique(err))
	}
	return nil
}

// nullableJSON keeps empty raw JSON out of jsonb columns.
func nullableJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
