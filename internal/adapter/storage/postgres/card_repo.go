package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CardRepo implements ports.CardRepository.
type CardRepo struct {
	pool Pool
}

// NewCardRepo creates a new CardRepo.
func NewCardRepo(pool Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

const cardColumns = `id, user_id, card_fingerprint, card_number_enc, last4, pin_hash, status,
	daily_limit, monthly_limit, current_daily_spent, current_monthly_spent, expiry_date, created_at, updated_at`

func scanCard(row pgx.Row) (*domain.VirtualCard, error) {
	c := &domain.VirtualCard{}
	var status string
	err := row.Scan(
		&c.ID, &c.UserID, &c.Fingerprint, &c.NumberSealed, &c.Last4, &c.PinHash, &status,
		&c.DailyLimit, &c.MonthlyLimit, &c.CurrentDailySpent, &c.CurrentMonthlySpent,
		&c.ExpiryDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Status = domain.CardStatus(status)
	return c, nil
}

// GetByFingerprint fetches a card by the keyed fingerprint of its number.
func (r *CardRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.VirtualCard, error) {
	query := `SELECT ` + cardColumns + ` FROM virtual_cards WHERE card_fingerprint = $1`

	c, err := scanCard(r.pool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("get card by fingerprint: %w", err)
	}
	return c, nil
}

// GetByIDForUpdate fetches a card with pessimistic locking.
// This MUST be called within a transaction.
func (r *CardRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.VirtualCard, error) {
	query := `SELECT ` + cardColumns + ` FROM virtual_cards WHERE id = $1 FOR UPDATE`

	c, err := scanCard(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get card for update: %w", err)
	}
	return c, nil
}

// GetByIDAndUser fetches a card only if it belongs to the given user.
func (r *CardRepo) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*domain.VirtualCard, error) {
	query := `SELECT ` + cardColumns + ` FROM virtual_cards WHERE id = $1 AND user_id = $2`

	c, err := scanCard(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, fmt.Errorf("get card by id and user: %w", err)
	}
	return c, nil
}

// UpdateSpent writes the card's new spend counters within a transaction.
func (r *CardRepo) UpdateSpent(ctx context.Context, tx pgx.Tx, id uuid.UUID, daily, monthly decimal.Decimal) error {
	query := `UPDATE virtual_cards SET current_daily_spent = $1, current_monthly_spent = $2, updated_at = NOW()
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, daily, monthly, id)
	if err != nil {
		return fmt.Errorf("update card spent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card not found: %s", id)
	}
	return nil
}

// UpdateStatus moves the card to status within a transaction.
func (r *CardRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.CardStatus) error {
	query := `UPDATE virtual_cards SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update card status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card not found: %s", id)
	}
	return nil
}
