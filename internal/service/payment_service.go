package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// PaymentServiceImpl implements ports.PaymentService. A merchant (the issuer)
// debits a customer's wallet; settlement to the merchant happens elsewhere.
type PaymentServiceImpl struct {
	pipeline   *Pipeline
	limits     *LimitEngine
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	prRepo     ports.PaymentRequestRepository
	hashSvc    ports.HashService
	webhooks   ports.WebhookNotifier
	audit      ports.AuditSink
	now        func() time.Time
	log        zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	pipeline *Pipeline,
	limits *LimitEngine,
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	prRepo ports.PaymentRequestRepository,
	hashSvc ports.HashService,
	webhooks ports.WebhookNotifier,
	audit ports.AuditSink,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		pipeline:   pipeline,
		limits:     limits,
		userRepo:   userRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		prRepo:     prRepo,
		hashSvc:    hashSvc,
		webhooks:   webhooks,
		audit:      audit,
		now:        time.Now,
		log:        log.With().Str("component", "payment_service").Logger(),
	}
}

// Pay debits the payer wallet once per (issuer, external_order_id).
func (s *PaymentServiceImpl) Pay(ctx context.Context, principal domain.Principal, req ports.PaymentInput) (result *ports.PaymentResult, err error) {
	defer func() {
		s.audit.Record(paymentAudit(principal, req, result, err))
	}()

	if !principal.IsService() {
		return nil, apperror.ErrInvalidCredential()
	}
	if missing := missingFields(map[string]bool{
		"external_order_id": req.ExternalOrderID == "",
		"user_email":        req.UserEmail == "",
	}); missing != nil {
		return nil, missing
	}
	if err := s.limits.CheckAmount(ClassMerchantDebit, req.Amount); err != nil {
		return nil, err
	}

	var (
		payer       *domain.User
		pinVerified bool
	)

	op := Operation{
		Kind:      domain.OperationMerchantPayment,
		Issuer:    principal.UserID,
		Reference: req.ExternalOrderID,
		Prepare: func(ctx context.Context) error {
			var err error
			payer, err = s.userRepo.GetByEmail(ctx, req.UserEmail)
			if err != nil {
				return apperror.ErrStoreUnavailable(fmt.Errorf("resolve payer: %w", err))
			}
			if payer == nil {
				return apperror.ErrPayerNotFound()
			}
			if payer.ID == principal.UserID {
				return apperror.ErrSelfTransfer()
			}

			wallet, err := s.walletRepo.GetByUserID(ctx, payer.ID)
			if err != nil {
				return apperror.ErrStoreUnavailable(fmt.Errorf("load payer wallet: %w", err))
			}
			if wallet == nil {
				return apperror.ErrPayerNotFound()
			}

			pinVerified, err = verifyWalletPin(s.hashSvc, wallet, req.UserPin)
			return err
		},
		Execute: func(ctx context.Context, tx pgx.Tx) (any, error) {
			return s.debit(ctx, tx, principal, payer, pinVerified, req)
		},
		Committed: func(body json.RawMessage) {
			s.notify(req, body)
		},
	}

	outcome, err := s.pipeline.Run(ctx, op)
	if err != nil {
		return nil, err
	}

	result = &ports.PaymentResult{}
	if err := outcome.Decode(result); err != nil {
		return nil, err
	}
	result.Replayed = outcome.Replayed
	return result, nil
}

func (s *PaymentServiceImpl) debit(
	ctx context.Context,
	tx pgx.Tx,
	principal domain.Principal,
	payer *domain.User,
	pinVerified bool,
	req ports.PaymentInput,
) (*ports.PaymentResult, error) {
	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, payer.ID)
	if err != nil {
		return nil, fmt.Errorf("lock payer wallet: %w", err)
	}
	if wallet == nil {
		return nil, apperror.ErrPayerNotFound()
	}

	auth, err := s.limits.AuthorizeWallet(ctx, tx, ClassMerchantDebit, wallet, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidFor(tx); err != nil {
		return nil, err
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, auth.NewBalance); err != nil {
		return nil, fmt.Errorf("update payer balance: %w", err)
	}

	now := s.now().UTC()
	entry := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        domain.TransactionTypeDebit,
		Amount:      req.Amount.Neg(),
		Status:      domain.TransactionStatusCompleted,
		ReferenceID: req.ExternalOrderID,
		Description: req.Description,
		CreatedAt:   now,
	}
	if err := s.txRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("insert debit transaction: %w", err)
	}

	pr := &domain.PaymentRequest{
		ID:              uuid.New(),
		IssuerID:        principal.UserID,
		ExternalOrderID: req.ExternalOrderID,
		UserID:          payer.ID,
		Amount:          req.Amount,
		Description:     req.Description,
		Status:          domain.TransactionStatusCompleted,
		CallbackURL:     req.CallbackURL,
		Metadata:        req.Metadata,
		TransactionID:   &entry.ID,
		CreatedAt:       now,
	}
	if err := s.prRepo.Create(ctx, tx, pr); err != nil {
		return nil, fmt.Errorf("insert payment request: %w", err)
	}

	return &ports.PaymentResult{
		Success:          true,
		PaymentRequestID: pr.ID,
		TransactionID:    entry.ID,
		ReferenceID:      req.ExternalOrderID,
		NewBalance:       auth.NewBalance,
		PinVerified:      pinVerified,
		Message:          "Payment completed successfully",
	}, nil
}

func (s *PaymentServiceImpl) notify(req ports.PaymentInput, body json.RawMessage) {
	if req.CallbackURL == nil || strings.TrimSpace(*req.CallbackURL) == "" {
		return
	}

	var res ports.PaymentResult
	if err := json.Unmarshal(body, &res); err != nil {
		s.log.Error().Err(err).Str("reference_id", req.ExternalOrderID).Msg("cannot build webhook payload")
		return
	}

	prID := res.PaymentRequestID
	s.webhooks.Notify(*req.CallbackURL, domain.WebhookPayload{
		ExternalOrderID:  req.ExternalOrderID,
		PaymentRequestID: &prID,
		TransactionID:    res.TransactionID,
		ReferenceID:      res.ReferenceID,
		Amount:           req.Amount,
		Status:           domain.TransactionStatusCompleted,
		Timestamp:        s.now().UTC(),
		Metadata:         req.Metadata,
	})
}

// verifyWalletPin returns whether a PIN was checked. Wallets without a PIN skip the check.
func verifyWalletPin(hashSvc ports.HashService, wallet *domain.Wallet, pin *string) (bool, error) {
	if !wallet.RequiresPin() {
		return false, nil
	}
	if pin == nil || *pin == "" {
		return false, apperror.ErrPinRequired()
	}

	ok, err := hashSvc.Verify(*pin, *wallet.PinHash)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("verify wallet pin: %w", err))
	}
	if !ok {
		return false, apperror.ErrPinIncorrect()
	}
	return true, nil
}

func paymentAudit(principal domain.Principal, req ports.PaymentInput, result *ports.PaymentResult, err error) *domain.AuditLog {
	meta := map[string]any{
		"external_order_id": req.ExternalOrderID,
		"amount":            req.Amount.StringFixed(domain.MoneyScale),
	}
	entry := &domain.AuditLog{
		Action:     domain.AuditActionPaymentCreate,
		Outcome:    domain.AuditOutcomeSuccess,
		UserID:     &principal.UserID,
		ResourceID: req.ExternalOrderID,
		IPAddress:  req.ClientIP,
		UserAgent:  req.UserAgent,
	}
	if err != nil {
		entry.Outcome = domain.AuditOutcomeFailure
		entry.ErrorCode = apperror.CodeOf(err)
	} else if result != nil {
		meta["transaction_id"] = result.TransactionID
		meta["replayed"] = result.Replayed
	}
	entry.Metadata, _ = json.Marshal(meta)
	return entry
}

// missingFields reports the names flagged true, sorted, as one MISSING_FIELDS error.
func missingFields(checks map[string]bool) error {
	var names []string
	for name, missing := range checks {
		if missing {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return apperror.ErrMissingFields(strings.Join(names, ", "))
}
