package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// DefaultUnitTimeout bounds one atomic unit once it has begun.
const DefaultUnitTimeout = 10 * time.Second

// Operation is one authorize-then-execute unit of work.
type Operation struct {
	Kind      domain.OperationKind
	Issuer    uuid.UUID
	Reference string

	// Prepare runs after the idempotency lookup and before the unit begins.
	// Its rejections are not recorded against the reference.
	Prepare func(ctx context.Context) error

	// Execute locks, authorizes and mutates inside tx. The returned value is
	// serialized and stored as the replay body.
	Execute func(ctx context.Context, tx pgx.Tx) (any, error)

	// Committed runs after a successful commit.
	Committed func(body json.RawMessage)
}

// Outcome is the stored body of a committed operation.
type Outcome struct {
	Body     json.RawMessage
	Replayed bool
}

// Decode unmarshals the stored body into v.
func (o *Outcome) Decode(v any) error {
	if err := json.Unmarshal(o.Body, v); err != nil {
		return apperror.InternalError(fmt.Errorf("decode stored response: %w", err))
	}
	return nil
}

type operationEvent struct {
	Kind        domain.OperationKind `json:"kind"`
	IssuerID    uuid.UUID            `json:"issuer_id"`
	ReferenceID string               `json:"reference_id"`
	Result      json.RawMessage      `json:"result"`
	CommittedAt time.Time            `json:"committed_at"`
}

// Pipeline runs every money-moving operation: lookup, begin, record pending,
// execute, complete, commit, then the post-commit side effects.
type Pipeline struct {
	transactor  ports.DBTransactor
	ops         ports.OperationRepository
	registry    *IdempotencyRegistry
	publisher   ports.EventPublisher
	metrics     ports.Metrics
	unitTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(
	transactor ports.DBTransactor,
	ops ports.OperationRepository,
	registry *IdempotencyRegistry,
	publisher ports.EventPublisher,
	metrics ports.Metrics,
	unitTimeout time.Duration,
	log zerolog.Logger,
) *Pipeline {
	if unitTimeout <= 0 {
		unitTimeout = DefaultUnitTimeout
	}
	return &Pipeline{
		transactor:  transactor,
		ops:         ops,
		registry:    registry,
		publisher:   publisher,
		metrics:     metrics,
		unitTimeout: unitTimeout,
		now:         time.Now,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes op at most once per (issuer, reference).
func (p *Pipeline) Run(ctx context.Context, op Operation) (*Outcome, error) {
	log := p.log.With().
		Str("kind", string(op.Kind)).
		Str("issuer_id", op.Issuer.String()).
		Str("reference_id", op.Reference).
		Logger()

	stored, claim, err := p.registry.Lookup(ctx, op.Kind, op.Issuer, op.Reference)
	if err != nil {
		p.observe(op.Kind, err)
		return nil, err
	}
	if stored != nil {
		log.Info().Msg("replaying completed operation")
		p.metrics.ObserveReplay(op.Kind)
		return &Outcome{Body: stored, Replayed: true}, nil
	}
	defer claim.Release(ctx)

	if op.Prepare != nil {
		if err := op.Prepare(ctx); err != nil {
			p.observe(op.Kind, err)
			return nil, err
		}
	}

	body, err := p.execute(ctx, op)
	if err != nil {
		if apperror.IsBusiness(err) {
			p.registry.Fail(ctx, op.Kind, op.Issuer, op.Reference, err)
			log.Info().Str("error_code", apperror.CodeOf(err)).Msg("operation rejected")
		} else {
			log.Error().Err(err).Msg("operation failed")
		}
		p.observe(op.Kind, err)
		return nil, err
	}

	log.Info().Msg("operation committed")
	p.registry.Remember(ctx, op.Kind, op.Issuer, op.Reference, body)
	p.publish(ctx, op, body)
	if op.Committed != nil {
		op.Committed(body)
	}
	p.metrics.ObserveOperation(op.Kind, "success")

	return &Outcome{Body: body}, nil
}

// execute is the atomic unit. It is detached from the caller's cancellation:
// once begun it either commits or rolls back on its own deadline.
func (p *Pipeline) execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.unitTimeout)
	defer cancel()

	tx, err := p.transactor.Begin(unitCtx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(err)
	}
	defer tx.Rollback(unitCtx) //nolint:errcheck

	now := p.now().UTC()
	rec := &domain.OperationRecord{
		IssuerID:    op.Issuer,
		ReferenceID: op.Reference,
		Kind:        op.Kind,
		Status:      domain.OperationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.ops.InsertPending(unitCtx, tx, rec); err != nil {
		if errors.Is(err, ports.ErrDuplicateReference) {
			return nil, apperror.ErrDuplicateInProgress()
		}
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("insert pending operation: %w", err))
	}

	result, err := op.Execute(unitCtx, tx)
	if err != nil {
		return nil, asAppError(err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal result: %w", err))
	}

	if err := p.ops.Complete(unitCtx, tx, op.Issuer, op.Reference, body); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete operation: %w", err))
	}

	if err := tx.Commit(unitCtx); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("commit: %w", err))
	}
	return body, nil
}

func (p *Pipeline) publish(ctx context.Context, op Operation, body json.RawMessage) {
	payload, err := json.Marshal(operationEvent{
		Kind:        op.Kind,
		IssuerID:    op.Issuer,
		ReferenceID: op.Reference,
		Result:      body,
		CommittedAt: p.now().UTC(),
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to encode operation event")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.publisher.Publish(pubCtx, "operation."+string(op.Kind), payload); err != nil {
		p.log.Warn().Err(err).Str("reference_id", op.Reference).Msg("failed to publish operation event")
	}
}

func (p *Pipeline) observe(kind domain.OperationKind, err error) {
	p.metrics.ObserveOperation(kind, apperror.CodeOf(err))
}

func asAppError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.InternalError(err)
}
