package postgres

import (
	"context"
	"fmt"
	"time"

	"wallet-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new ledger entry within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, wallet_id, type, amount, status, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, string(t.Type), t.Amount, string(t.Status),
		t.ReferenceID, t.Description, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// SumOutflowSince totals completed entries of one type since a point in time.
// Amounts are stored signed, so outflows are negated back to a positive total.
func (r *TransactionRepo) SumOutflowSince(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, typ domain.TransactionType, since time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(-amount), 0) FROM transactions
		WHERE wallet_id = $1 AND type = $2 AND status = 'completed' AND created_at >= $3`

	var total decimal.Decimal
	if err := tx.QueryRow(ctx, query, walletID, string(typ), since).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum outflow: %w", err)
	}
	return total, nil
}
