package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	pipeline   *Pipeline
	limits     *LimitEngine
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	hashSvc    ports.HashService
	audit      ports.AuditSink
	now        func() time.Time
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	pipeline *Pipeline,
	limits *LimitEngine,
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	hashSvc ports.HashService,
	audit ports.AuditSink,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		pipeline:   pipeline,
		limits:     limits,
		userRepo:   userRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		hashSvc:    hashSvc,
		audit:      audit,
		now:        time.Now,
		log:        log.With().Str("component", "transfer_service").Logger(),
	}
}

// Transfer moves amount from the principal's wallet to the recipient's.
func (s *TransferServiceImpl) Transfer(ctx context.Context, principal domain.Principal, req ports.TransferInput) (result *ports.TransferResult, err error) {
	reference := strings.TrimSpace(req.IdempotencyKey)
	if reference == "" {
		reference = domain.TransferReference(s.now(), principal.UserID)
	}

	defer func() {
		s.audit.Record(transferAudit(principal, reference, req, err))
	}()

	if missing := missingFields(map[string]bool{
		"recipient_email": strings.TrimSpace(req.RecipientEmail) == "",
	}); missing != nil {
		return nil, missing
	}
	if err := s.limits.CheckAmount(ClassTransferOut, req.Amount); err != nil {
		return nil, err
	}

	var (
		sender, recipient *domain.Wallet
		pinVerified       bool
	)

	op := Operation{
		Kind:      domain.OperationTransfer,
		Issuer:    principal.UserID,
		Reference: reference,
		Prepare: func(ctx context.Context) error {
			user, err := s.userRepo.GetByEmail(ctx, req.RecipientEmail)
			if err != nil {
				return apperror.ErrStoreUnavailable(fmt.Errorf("resolve recipient: %w", err))
			}
			if user == nil {
				return apperror.ErrRecipientNotFound()
			}
			if user.ID == principal.UserID {
				return apperror.ErrSelfTransfer()
			}

			sender, err = s.walletRepo.GetByUserID(ctx, principal.UserID)
			if err != nil {
				return apperror.ErrStoreUnavailable(fmt.Errorf("load sender wallet: %w", err))
			}
			if sender == nil {
				return apperror.InternalError(fmt.Errorf("principal %s has no wallet", principal.UserID))
			}

			recipient, err = s.walletRepo.GetByUserID(ctx, user.ID)
			if err != nil {
				return apperror.ErrStoreUnavailable(fmt.Errorf("load recipient wallet: %w", err))
			}
			if recipient == nil {
				return apperror.ErrRecipientNotFound()
			}

			pinVerified, err = verifyWalletPin(s.hashSvc, sender, req.UserPin)
			return err
		},
		Execute: func(ctx context.Context, tx pgx.Tx) (any, error) {
			return s.move(ctx, tx, sender, recipient, reference, pinVerified, req)
		},
	}

	outcome, err := s.pipeline.Run(ctx, op)
	if err != nil {
		return nil, err
	}

	result = &ports.TransferResult{}
	if err := outcome.Decode(result); err != nil {
		return nil, err
	}
	result.Replayed = outcome.Replayed
	return result, nil
}

func (s *TransferServiceImpl) move(
	ctx context.Context,
	tx pgx.Tx,
	sender, recipient *domain.Wallet,
	reference string,
	pinVerified bool,
	req ports.TransferInput,
) (*ports.TransferResult, error) {
	locked, err := s.lockPair(ctx, tx, sender, recipient)
	if err != nil {
		return nil, err
	}
	from, to := locked[sender.ID], locked[recipient.ID]

	auth, err := s.limits.AuthorizeWallet(ctx, tx, ClassTransferOut, from, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidFor(tx); err != nil {
		return nil, err
	}

	recipientBalance := to.Balance.Add(req.Amount)
	if err := s.walletRepo.UpdateBalance(ctx, tx, from.ID, auth.NewBalance); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}
	if err := s.walletRepo.UpdateBalance(ctx, tx, to.ID, recipientBalance); err != nil {
		return nil, fmt.Errorf("credit recipient: %w", err)
	}

	now := s.now().UTC()
	out := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    from.ID,
		Type:        domain.TransactionTypeTransferOut,
		Amount:      req.Amount.Neg(),
		Status:      domain.TransactionStatusCompleted,
		ReferenceID: reference,
		Description: req.Description,
		CreatedAt:   now,
	}
	in := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    to.ID,
		Type:        domain.TransactionTypeTransferIn,
		Amount:      req.Amount,
		Status:      domain.TransactionStatusCompleted,
		ReferenceID: reference,
		Description: req.Description,
		CreatedAt:   now,
	}
	for _, entry := range []*domain.Transaction{out, in} {
		if err := s.txRepo.Create(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("insert %s transaction: %w", entry.Type, err)
		}
	}

	remaining := decimal.Zero
	if auth.DailyRemaining != nil {
		remaining = *auth.DailyRemaining
	}

	return &ports.TransferResult{
		Success: true,
		Data: ports.TransferData{
			TransactionID:       out.ID,
			ReferenceID:         reference,
			SenderNewBalance:    auth.NewBalance,
			RecipientNewBalance: recipientBalance,
			PinVerified:         pinVerified,
			DailyLimitRemaining: remaining,
		},
	}, nil
}

// lockPair locks both wallets in ascending id order so two opposite transfers
// cannot deadlock.
func (s *TransferServiceImpl) lockPair(ctx context.Context, tx pgx.Tx, a, b *domain.Wallet) (map[uuid.UUID]*domain.Wallet, error) {
	first, second := a, b
	if strings.Compare(b.ID.String(), a.ID.String()) < 0 {
		first, second = b, a
	}

	locked := make(map[uuid.UUID]*domain.Wallet, 2)
	for _, w := range []*domain.Wallet{first, second} {
		row, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, w.UserID)
		if err != nil {
			return nil, fmt.Errorf("lock wallet %s: %w", w.ID, err)
		}
		if row == nil {
			if w == b {
				return nil, apperror.ErrRecipientNotFound()
			}
			return nil, fmt.Errorf("wallet %s disappeared", w.ID)
		}
		locked[row.ID] = row
	}
	return locked, nil
}

func transferAudit(principal domain.Principal, reference string, req ports.TransferInput, err error) *domain.AuditLog {
	entry := &domain.AuditLog{
		Action:     domain.AuditActionTransferCreate,
		Outcome:    domain.AuditOutcomeSuccess,
		UserID:     &principal.UserID,
		ResourceID: reference,
		IPAddress:  req.ClientIP,
		UserAgent:  req.UserAgent,
	}
	if err != nil {
		entry.Outcome = domain.AuditOutcomeFailure
		entry.ErrorCode = apperror.CodeOf(err)
	}
	entry.Metadata, _ = json.Marshal(map[string]any{
		"amount":          req.Amount.StringFixed(domain.MoneyScale),
		"recipient_email": req.RecipientEmail,
	})
	return entry
}
