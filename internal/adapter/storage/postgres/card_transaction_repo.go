package postgres

import (
	"context"
	"fmt"
	"strings"

	"wallet-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CardTransactionRepo implements ports.CardTransactionRepository.
type CardTransactionRepo struct {
	pool Pool
}

// NewCardTransactionRepo creates a new CardTransactionRepo.
func NewCardTransactionRepo(pool Pool) *CardTransactionRepo {
	return &CardTransactionRepo{pool: pool}
}

const insertCardTransaction = `INSERT INTO virtual_card_transactions
	(id, card_id, user_id, type, amount, status, reference_id, description, merchant_info, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *CardTransactionRepo) insert(ctx context.Context, db execer, ct *domain.VirtualCardTransaction) error {
	_, err := db.Exec(ctx, insertCardTransaction,
		ct.ID, ct.CardID, ct.UserID, string(ct.Type), ct.Amount, string(ct.Status),
		ct.ReferenceID, ct.Description, nullableJSON(ct.MerchantInfo), ct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert card transaction: %w", err)
	}
	return nil
}

// Create inserts a card ledger entry within a database transaction.
func (r *CardTransactionRepo) Create(ctx context.Context, tx pgx.Tx, ct *domain.VirtualCardTransaction) error {
	return r.insert(ctx, tx, ct)
}

// Record inserts a card ledger entry that moves no money, such as a validation.
func (r *CardTransactionRepo) Record(ctx context.Context, ct *domain.VirtualCardTransaction) error {
	return r.insert(ctx, r.pool, ct)
}

// ListByUser returns one page of the user's card entries, newest first.
func (r *CardTransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID, limit, offset int) ([]domain.VirtualCardTransaction, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if cardID != nil {
		conditions = append(conditions, fmt.Sprintf("card_id = $%d", argIdx))
		args = append(args, *cardID)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT id, card_id, user_id, type, amount, status, reference_id, description, merchant_info, created_at
		FROM virtual_card_transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list card transactions: %w", err)
	}
	defer rows.Close()

	out := []domain.VirtualCardTransaction{}
	for rows.Next() {
		var (
			ct          domain.VirtualCardTransaction
			typ, status string
		)
		if err := rows.Scan(
			&ct.ID, &ct.CardID, &ct.UserID, &typ, &ct.Amount, &status,
			&ct.ReferenceID, &ct.Description, &ct.MerchantInfo, &ct.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan card transaction row: %w", err)
		}
		ct.Type = domain.CardTransactionType(typ)
		ct.Status = domain.TransactionStatus(status)
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card transaction rows: %w", err)
	}
	return out, nil
}
