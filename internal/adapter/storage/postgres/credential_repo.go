package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CredentialRepo implements ports.CredentialRepository.
type CredentialRepo struct {
	pool Pool
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(pool Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

// Create inserts a new service credential. Only the fingerprint is stored.
func (r *CredentialRepo) Create(ctx context.Context, c *domain.ServiceCredential) error {
	query := `INSERT INTO service_credentials (id, user_id, name, fingerprint, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, c.ID, c.UserID, c.Name, c.Fingerprint, c.IsActive, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert service credential: %w", err)
	}
	return nil
}

// GetByFingerprint fetches a credential by the HMAC fingerprint of its key.
func (r *CredentialRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.ServiceCredential, error) {
	query := `SELECT id, user_id, name, fingerprint, is_active, last_used_at, created_at
		FROM service_credentials WHERE fingerprint = $1`

	c := &domain.ServiceCredential{}
	err := r.pool.QueryRow(ctx, query, fingerprint).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Fingerprint, &c.IsActive, &c.LastUsedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credential by fingerprint: %w", err)
	}
	return c, nil
}

// TouchLastUsed stamps the credential's last use.
func (r *CredentialRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE service_credentials SET last_used_at = $1 WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}
