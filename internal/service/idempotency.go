package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdempotencyRegistry decides whether a reference may execute, must be replayed
// or must be rejected. The operation_records table is the source of truth; redis
// only holds the in-flight marker and a replay cache.
type IdempotencyRegistry struct {
	ops         ports.OperationRepository
	guard       ports.InFlightGuard
	cache       ports.IdempotencyCache
	inFlightTTL time.Duration
	replayTTL   time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewIdempotencyRegistry creates a registry.
func NewIdempotencyRegistry(
	ops ports.OperationRepository,
	guard ports.InFlightGuard,
	cache ports.IdempotencyCache,
	inFlightTTL, replayTTL time.Duration,
	log zerolog.Logger,
) *IdempotencyRegistry {
	return &IdempotencyRegistry{
		ops:         ops,
		guard:       guard,
		cache:       cache,
		inFlightTTL: inFlightTTL,
		replayTTL:   replayTTL,
		now:         time.Now,
		log:         log.With().Str("component", "idempotency").Logger(),
	}
}

// Claim is held by the one request allowed to execute a reference.
type Claim struct {
	registry *IdempotencyRegistry
	key      string
	token    string
	held     bool
}

// Release drops the in-flight marker. Safe to call more than once.
func (c *Claim) Release(ctx context.Context) {
	if c == nil || !c.held {
		return
	}
	c.held = false
	if err := c.registry.guard.Release(context.WithoutCancel(ctx), c.key, c.token); err != nil {
		c.registry.log.Warn().Err(err).Str("key", c.key).Msg("failed to release in-flight marker")
	}
}

// Lookup returns the stored body when the reference already completed as kind.
// Otherwise it returns a claim the caller must Release once the operation is
// settled. A reference already used by another kind is a conflict.
func (r *IdempotencyRegistry) Lookup(ctx context.Context, kind domain.OperationKind, issuerID uuid.UUID, referenceID string) (json.RawMessage, *Claim, error) {
	replayKey := domain.BuildReplayKey(kind, issuerID, referenceID)

	cached, err := r.cache.Get(ctx, replayKey)
	if err != nil {
		r.log.Warn().Err(err).Str("key", replayKey).Msg("replay cache unavailable, falling back to database")
	} else if cached != nil {
		return cached, nil, nil
	}

	key := domain.BuildIdempotencyKey(issuerID, referenceID)
	claim := &Claim{registry: r, key: key, token: uuid.NewString()}
	acquired, err := r.guard.Acquire(ctx, key, claim.token, r.inFlightTTL)
	switch {
	case err != nil:
		r.log.Warn().Err(err).Str("key", key).Msg("in-flight guard unavailable, relying on database uniqueness")
	case !acquired:
		return nil, nil, apperror.ErrDuplicateInProgress()
	default:
		claim.held = true
	}

	rec, err := r.ops.Get(ctx, issuerID, referenceID)
	if err != nil {
		claim.Release(ctx)
		return nil, nil, apperror.ErrStoreUnavailable(fmt.Errorf("lookup operation record: %w", err))
	}
	if rec == nil {
		return nil, claim, nil
	}

	claim.Release(ctx)

	if rec.Kind != kind {
		r.log.Warn().
			Str("reference_id", referenceID).
			Str("stored_kind", string(rec.Kind)).
			Str("kind", string(kind)).
			Msg("reference reused across operation kinds")
		return nil, nil, apperror.ErrReferenceConflict()
	}

	switch rec.Status {
	case domain.OperationCompleted:
		r.Remember(ctx, kind, issuerID, referenceID, rec.Response)
		return rec.Response, nil, nil
	case domain.OperationFailed:
		code := apperror.CodeInternal
		if rec.ErrorCode != nil {
			code = *rec.ErrorCode
		}
		return nil, nil, apperror.FromCode(code)
	default:
		return nil, nil, apperror.ErrDuplicateInProgress()
	}
}

// Remember caches a completed body for fast replay of the same kind.
func (r *IdempotencyRegistry) Remember(ctx context.Context, kind domain.OperationKind, issuerID uuid.UUID, referenceID string, body json.RawMessage) {
	key := domain.BuildReplayKey(kind, issuerID, referenceID)
	if err := r.cache.Set(context.WithoutCancel(ctx), key, body, r.replayTTL); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to cache replay body")
	}
}

// Fail persists a deterministic rejection so retries of the reference get the same answer.
func (r *IdempotencyRegistry) Fail(ctx context.Context, kind domain.OperationKind, issuerID uuid.UUID, referenceID string, cause error) {
	code := apperror.CodeOf(cause)
	now := r.now().UTC()
	rec := &domain.OperationRecord{
		IssuerID:    issuerID,
		ReferenceID: referenceID,
		Kind:        kind,
		Status:      domain.OperationFailed,
		ErrorCode:   &code,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.ops.RecordFailure(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Error().Err(err).
			Str("reference_id", referenceID).
			Str("error_code", code).
			Msg("failed to record failed operation")
	}
}
