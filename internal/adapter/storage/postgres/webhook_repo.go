package postgres

import (
	"context"
	"fmt"

	"wallet-gateway/internal/core/domain"
)

// WebhookLogRepo implements ports.WebhookLogRepository.
type WebhookLogRepo struct {
	pool Pool
}

// NewWebhookLogRepo creates a new WebhookLogRepo.
func NewWebhookLogRepo(pool Pool) *WebhookLogRepo {
	return &WebhookLogRepo{pool: pool}
}

// Create appends one delivery attempt.
func (r *WebhookLogRepo) Create(ctx context.Context, log *domain.WebhookLog) error {
	query := `INSERT INTO webhook_logs
		(id, payment_request_id, reference_id, url, payload, success, response_status, response_body, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		log.ID, log.PaymentRequestID, log.ReferenceID, log.URL, nullableJSON(log.Payload),
		log.Success, log.ResponseStatus, log.ResponseBody, log.Error, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}
