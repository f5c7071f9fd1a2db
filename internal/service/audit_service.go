package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditSinkImpl implements ports.AuditSink. Entries are persisted and published
// off the request path.
type AuditSinkImpl struct {
	repo      ports.AuditRepository
	publisher ports.EventPublisher
	now       func() time.Time
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewAuditSink creates a new audit sink.
// If repo is nil, audit entries are only written to the logger.
func NewAuditSink(repo ports.AuditRepository, publisher ports.EventPublisher, log zerolog.Logger) *AuditSinkImpl {
	return &AuditSinkImpl{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		log:       log.With().Str("component", "audit").Logger(),
	}
}

// Record stores entry asynchronously (fire-and-forget).
func (s *AuditSinkImpl) Record(entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.write(entry)
	}()
}

// Wait blocks until every pending entry has been written.
func (s *AuditSinkImpl) Wait() {
	s.wg.Wait()
}

func (s *AuditSinkImpl) write(entry *domain.AuditLog) {
	s.log.Info().
		Str("action", string(entry.Action)).
		Str("outcome", string(entry.Outcome)).
		Str("resource_id", entry.ResourceID).
		Str("error_code", entry.ErrorCode).
		Str("ip", entry.IPAddress).
		Msg("audit")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.repo != nil {
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}

	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode audit event")
		return
	}
	if err := s.publisher.Publish(ctx, "audit."+string(entry.Action), payload); err != nil {
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to publish audit event")
	}
}
