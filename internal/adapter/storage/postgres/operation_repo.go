package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OperationRepo implements ports.OperationRepository.
type OperationRepo struct {
	pool Pool
}

// NewOperationRepo creates a new OperationRepo.
func NewOperationRepo(pool Pool) *OperationRepo {
	return &OperationRepo{pool: pool}
}

// Get fetches the record for (issuer, reference). Returns nil, nil if absent.
func (r *OperationRepo) Get(ctx context.Context, issuerID uuid.UUID, referenceID string) (*domain.OperationRecord, error) {
	query := `SELECT issuer_id, reference_id, kind, status, response, error_code, created_at, updated_at
		FROM operation_records WHERE issuer_id = $1 AND reference_id = $2`

	rec := &domain.OperationRecord{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, issuerID, referenceID).Scan(
		&rec.IssuerID, &rec.ReferenceID, &kind, &status, &rec.Response, &rec.ErrorCode,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get operation record: %w", err)
	}
	rec.Kind = domain.OperationKind(kind)
	rec.Status = domain.OperationStatus(status)
	return rec, nil
}

// InsertPending claims the key inside the monetary transaction.
// The primary key rejects a second claim with ports.ErrDuplicateReference.
func (r *OperationRepo) InsertPending(ctx context.Context, tx pgx.Tx, rec *domain.OperationRecord) error {
	query := `INSERT INTO operation_records (issuer_id, reference_id, kind, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		rec.IssuerID, rec.ReferenceID, string(rec.Kind), string(domain.OperationPending),
		rec.CreatedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending operation: %w", translateUnique(err))
	}
	return nil
}

// Complete marks the record completed and stores the response for replay.
func (r *OperationRepo) Complete(ctx context.Context, tx pgx.Tx, issuerID uuid.UUID, referenceID string, response json.RawMessage) error {
	query := `UPDATE operation_records SET status = $1, response = $2, updated_at = NOW()
		WHERE issuer_id = $3 AND reference_id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query,
		string(domain.OperationCompleted), response, issuerID, referenceID, string(domain.OperationPending),
	)
	if err != nil {
		return fmt.Errorf("complete operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending operation not found: %s", domain.BuildIdempotencyKey(issuerID, referenceID))
	}
	return nil
}

// RecordFailure stores a failed outcome after the monetary transaction rolled back.
// An existing record for the key is left untouched.
func (r *OperationRepo) RecordFailure(ctx context.Context, rec *domain.OperationRecord) error {
	query := `INSERT INTO operation_records (issuer_id, reference_id, kind, status, error_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (issuer_id, reference_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		rec.IssuerID, rec.ReferenceID, string(rec.Kind), string(domain.OperationFailed),
		rec.ErrorCode, rec.CreatedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record failed operation: %w", err)
	}
	return nil
}

var _ ports.OperationRepository = (*OperationRepo)(nil)
