package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	cardNumberPattern = regexp.MustCompile(`^[0-9]{16}$`)
	cardPinPattern    = regexp.MustCompile(`^[0-9]{4}$`)
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// CardServiceImpl implements ports.CardService.
type CardServiceImpl struct {
	pipeline   *Pipeline
	limits     *LimitEngine
	cardRepo   ports.CardRepository
	cardTxRepo ports.CardTransactionRepository
	hashSvc    ports.HashService
	sigSvc     ports.SignatureService
	pepper     string
	audit      ports.AuditSink
	dummyHash  string
	now        func() time.Time
	log        zerolog.Logger
}

// NewCardService creates a new CardServiceImpl. pepper keys the card fingerprint.
func NewCardService(
	pipeline *Pipeline,
	limits *LimitEngine,
	cardRepo ports.CardRepository,
	cardTxRepo ports.CardTransactionRepository,
	hashSvc ports.HashService,
	sigSvc ports.SignatureService,
	pepper string,
	audit ports.AuditSink,
	log zerolog.Logger,
) *CardServiceImpl {
	s := &CardServiceImpl{
		pipeline:   pipeline,
		limits:     limits,
		cardRepo:   cardRepo,
		cardTxRepo: cardTxRepo,
		hashSvc:    hashSvc,
		sigSvc:     sigSvc,
		pepper:     pepper,
		audit:      audit,
		now:        time.Now,
		log:        log.With().Str("component", "card_service").Logger(),
	}

	// Unknown cards still pay for one hash comparison.
	if h, err := hashSvc.Hash("0000"); err == nil {
		s.dummyHash = h
	} else {
		s.log.Warn().Err(err).Msg("failed to prepare dummy PIN hash")
	}
	return s
}

// CardFingerprint is the lookup key of a card number.
func CardFingerprint(sigSvc ports.SignatureService, pepper, number string) string {
	return sigSvc.Sign(pepper, number)
}

// Validate checks card credentials and state. An accompanying amount is checked
// against the remaining limits without spending anything.
func (s *CardServiceImpl) Validate(ctx context.Context, principal domain.Principal, req ports.CardInput) (result *ports.CardResult, err error) {
	var card *domain.VirtualCard
	defer func() {
		s.audit.Record(cardAudit(ports.CardModeValidate, principal, card, req, err))
	}()

	card, err = s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.checkValidation(card, req.Amount, now)
	s.recordValidation(ctx, card, req, now, err)
	if err != nil {
		return nil, err
	}

	return cardResult(card, now), nil
}

func (s *CardServiceImpl) checkValidation(card *domain.VirtualCard, amount *decimal.Decimal, now time.Time) error {
	if err := CardUsable(card, now); err != nil {
		return err
	}
	if amount == nil {
		return nil
	}
	if err := s.limits.CheckAmount(ClassCardPurchase, *amount); err != nil {
		return err
	}
	return CheckCardLimits(card, *amount)
}

// Charge spends amount on the card once per (principal, reference).
func (s *CardServiceImpl) Charge(ctx context.Context, principal domain.Principal, req ports.CardInput) (result *ports.CardResult, err error) {
	var card *domain.VirtualCard
	defer func() {
		s.audit.Record(cardAudit(ports.CardModeCharge, principal, card, req, err))
	}()

	if req.Amount == nil {
		return nil, apperror.ErrMissingFields("amount")
	}
	amount := *req.Amount
	if err := s.limits.CheckAmount(ClassCardPurchase, amount); err != nil {
		return nil, err
	}

	card, err = s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := CardUsable(card, s.now()); err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(req.IdempotencyKey)
	if reference == "" {
		reference = domain.ChargeReference(s.now(), card.ID)
	}

	outcome, err := s.pipeline.Run(ctx, Operation{
		Kind:      domain.OperationCardCharge,
		Issuer:    principal.UserID,
		Reference: reference,
		Execute: func(ctx context.Context, tx pgx.Tx) (any, error) {
			return s.charge(ctx, tx, card.ID, amount, reference, req)
		},
	})
	if err != nil {
		return nil, err
	}

	result = &ports.CardResult{}
	if err := outcome.Decode(result); err != nil {
		return nil, err
	}
	result.Replayed = outcome.Replayed
	return result, nil
}

func (s *CardServiceImpl) charge(
	ctx context.Context,
	tx pgx.Tx,
	cardID uuid.UUID,
	amount decimal.Decimal,
	reference string,
	req ports.CardInput,
) (*ports.CardResult, error) {
	card, err := s.cardRepo.GetByIDForUpdate(ctx, tx, cardID)
	if err != nil {
		return nil, fmt.Errorf("lock card: %w", err)
	}
	if card == nil {
		return nil, apperror.ErrInvalidCardCredentials()
	}

	auth, err := s.limits.AuthorizeCard(tx, card, amount)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidFor(tx); err != nil {
		return nil, err
	}

	if err := s.cardRepo.UpdateSpent(ctx, tx, card.ID, auth.NewDailySpent, auth.NewMonthlySpent); err != nil {
		return nil, fmt.Errorf("update spend counters: %w", err)
	}

	now := s.now().UTC()
	purchase := &domain.VirtualCardTransaction{
		ID:           uuid.New(),
		CardID:       card.ID,
		UserID:       card.UserID,
		Type:         domain.CardTransactionPurchase,
		Amount:       amount,
		Status:       domain.TransactionStatusCompleted,
		ReferenceID:  reference,
		MerchantInfo: merchantInfo(req),
		CreatedAt:    now,
	}
	if err := s.cardTxRepo.Create(ctx, tx, purchase); err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	card.CurrentDailySpent = auth.NewDailySpent
	card.CurrentMonthlySpent = auth.NewMonthlySpent

	res := cardResult(card, now)
	res.TransactionID = &purchase.ID
	res.ReferenceID = reference
	res.AmountCharged = &amount
	res.NewDailySpent = &auth.NewDailySpent
	res.NewMonthlySpent = &auth.NewMonthlySpent
	return res, nil
}

// Limits reports whether amount would fit the principal's own card right now.
func (s *CardServiceImpl) Limits(ctx context.Context, principal domain.Principal, cardID uuid.UUID, amount decimal.Decimal) (result *ports.CardLimitsResult, err error) {
	var card *domain.VirtualCard
	defer func() {
		entry := cardAudit(ports.CardModeValidate, principal, card, ports.CardInput{Amount: &amount}, err)
		entry.Action = domain.AuditActionCardLimits
		s.audit.Record(entry)
	}()

	if !amount.IsZero() {
		if err := s.limits.CheckAmount(ClassCardPurchase, amount); err != nil {
			return nil, err
		}
	}

	card, err = s.cardRepo.GetByIDAndUser(ctx, cardID, principal.UserID)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("load card: %w", err))
	}
	if card == nil {
		return nil, apperror.ErrCardNotFound()
	}

	check := CardUsable(card, s.now())
	if check == nil && amount.IsPositive() {
		check = CheckCardLimits(card, amount)
	}

	result = &ports.CardLimitsResult{
		Success:          true,
		Valid:            check == nil,
		DailyLimit:       card.DailyLimit,
		MonthlyLimit:     card.MonthlyLimit,
		DailySpent:       card.CurrentDailySpent,
		MonthlySpent:     card.CurrentMonthlySpent,
		DailyRemaining:   card.DailyRemaining(),
		MonthlyRemaining: card.MonthlyRemaining(),
	}
	if check != nil {
		result.Error = apperror.CodeOf(check)
	}
	return result, nil
}

// Deactivate moves the principal's own active card to inactive and records a
// deactivation entry, once per (principal, reference).
func (s *CardServiceImpl) Deactivate(ctx context.Context, principal domain.Principal, req ports.CardDeactivateInput) (result *ports.CardDeactivateResult, err error) {
	reference := strings.TrimSpace(req.IdempotencyKey)
	if reference == "" {
		reference = domain.DeactivationReference(s.now(), req.CardID)
	}

	defer func() {
		s.audit.Record(deactivateAudit(principal, reference, req, err))
	}()

	outcome, err := s.pipeline.Run(ctx, Operation{
		Kind:      domain.OperationCardDeactivate,
		Issuer:    principal.UserID,
		Reference: reference,
		Prepare: func(ctx context.Context) error {
			card, err := s.cardRepo.GetByIDAndUser(ctx, req.CardID, principal.UserID)
			if err != nil {
				return apperror.ErrStoreUnavailable(fmt.Errorf("load card: %w", err))
			}
			if card == nil {
				return apperror.ErrCardNotFound()
			}
			return nil
		},
		Execute: func(ctx context.Context, tx pgx.Tx) (any, error) {
			return s.deactivate(ctx, tx, principal.UserID, reference, req)
		},
	})
	if err != nil {
		return nil, err
	}

	result = &ports.CardDeactivateResult{}
	if err := outcome.Decode(result); err != nil {
		return nil, err
	}
	result.Replayed = outcome.Replayed
	return result, nil
}

func (s *CardServiceImpl) deactivate(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	reference string,
	req ports.CardDeactivateInput,
) (*ports.CardDeactivateResult, error) {
	card, err := s.cardRepo.GetByIDForUpdate(ctx, tx, req.CardID)
	if err != nil {
		return nil, fmt.Errorf("lock card: %w", err)
	}
	if card == nil || card.UserID != userID {
		return nil, apperror.ErrCardNotFound()
	}
	if card.Status != domain.CardStatusActive {
		return nil, apperror.ErrCardNotActive()
	}

	if err := s.cardRepo.UpdateStatus(ctx, tx, card.ID, domain.CardStatusInactive); err != nil {
		return nil, fmt.Errorf("update card status: %w", err)
	}

	now := s.now().UTC()
	entry := &domain.VirtualCardTransaction{
		ID:          uuid.New(),
		CardID:      card.ID,
		UserID:      card.UserID,
		Type:        domain.CardTransactionDeactivation,
		Amount:      decimal.Zero,
		Status:      domain.TransactionStatusCompleted,
		ReferenceID: reference,
		Description: req.Reason,
		CreatedAt:   now,
	}
	if err := s.cardTxRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("insert deactivation: %w", err)
	}

	return &ports.CardDeactivateResult{
		Success:       true,
		CardID:        card.ID,
		Status:        domain.CardStatusInactive,
		TransactionID: entry.ID,
		ReferenceID:   reference,
		DeactivatedAt: now,
	}, nil
}

// History pages through the principal's card entries, newest first. A card
// filter naming someone else's card is CARD_NOT_FOUND.
func (s *CardServiceImpl) History(ctx context.Context, principal domain.Principal, query ports.CardHistoryQuery) (*ports.CardHistoryResult, error) {
	limit := query.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 0 || limit > maxHistoryLimit {
		return nil, apperror.ErrInvalidFormat(fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
	}
	if query.Offset < 0 {
		return nil, apperror.ErrInvalidFormat("offset must not be negative")
	}

	if query.CardID != nil {
		card, err := s.cardRepo.GetByIDAndUser(ctx, *query.CardID, principal.UserID)
		if err != nil {
			return nil, apperror.ErrStoreUnavailable(fmt.Errorf("load card: %w", err))
		}
		if card == nil {
			return nil, apperror.ErrCardNotFound()
		}
	}

	entries, err := s.cardTxRepo.ListByUser(ctx, principal.UserID, query.CardID, limit, query.Offset)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("list card transactions: %w", err))
	}

	return &ports.CardHistoryResult{
		Success:      true,
		Transactions: entries,
		Limit:        limit,
		Offset:       query.Offset,
	}, nil
}

// authenticate answers INVALID_CREDENTIALS for both unknown cards and wrong PINs.
func (s *CardServiceImpl) authenticate(ctx context.Context, req ports.CardInput) (*domain.VirtualCard, error) {
	if !cardNumberPattern.MatchString(req.CardNumber) || !cardPinPattern.MatchString(req.Pin) {
		return nil, apperror.ErrInvalidFormat("Card number must be 16 digits and PIN 4 digits")
	}

	card, err := s.cardRepo.GetByFingerprint(ctx, CardFingerprint(s.sigSvc, s.pepper, req.CardNumber))
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("lookup card: %w", err))
	}

	hash := s.dummyHash
	if card != nil {
		hash = card.PinHash
	}
	ok, err := s.hashSvc.Verify(req.Pin, hash)
	if err != nil && card != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify card pin: %w", err))
	}
	if card == nil || !ok {
		s.log.Warn().Str("card", logger.MaskCard(req.CardNumber)).Msg("card authentication failed")
		return nil, apperror.ErrInvalidCardCredentials()
	}
	return card, nil
}

func (s *CardServiceImpl) recordValidation(ctx context.Context, card *domain.VirtualCard, req ports.CardInput, now time.Time, cause error) {
	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	}
	status := domain.TransactionStatusCompleted
	if cause != nil {
		status = domain.TransactionStatusFailed
	}

	entry := &domain.VirtualCardTransaction{
		ID:           uuid.New(),
		CardID:       card.ID,
		UserID:       card.UserID,
		Type:         domain.CardTransactionValidation,
		Amount:       amount,
		Status:       status,
		ReferenceID:  domain.ValidationReference(now, card.ID),
		MerchantInfo: merchantInfo(req),
		CreatedAt:    now,
	}
	if err := s.cardTxRepo.Record(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("card_id", card.ID.String()).Msg("failed to record card validation")
	}
}

func cardResult(card *domain.VirtualCard, now time.Time) *ports.CardResult {
	return &ports.CardResult{
		Success:          true,
		CardID:           card.ID,
		Status:           card.Status,
		DailyLimit:       card.DailyLimit,
		MonthlyLimit:     card.MonthlyLimit,
		DailySpent:       card.CurrentDailySpent,
		MonthlySpent:     card.CurrentMonthlySpent,
		DailyRemaining:   card.DailyRemaining(),
		MonthlyRemaining: card.MonthlyRemaining(),
		ValidatedAt:      now,
	}
}

func merchantInfo(req ports.CardInput) json.RawMessage {
	if req.MerchantID == "" && req.IPAddress == "" && req.UserAgent == "" {
		return nil
	}
	raw, _ := json.Marshal(map[string]string{
		"merchant_id": req.MerchantID,
		"ip_address":  req.IPAddress,
		"user_agent":  req.UserAgent,
	})
	return raw
}

func deactivateAudit(principal domain.Principal, reference string, req ports.CardDeactivateInput, err error) *domain.AuditLog {
	entry := &domain.AuditLog{
		Action:     domain.AuditActionCardDeactivate,
		Outcome:    domain.AuditOutcomeSuccess,
		UserID:     &principal.UserID,
		ResourceID: req.CardID.String(),
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	if err != nil {
		entry.Outcome = domain.AuditOutcomeFailure
		entry.ErrorCode = apperror.CodeOf(err)
	}
	entry.Metadata, _ = json.Marshal(map[string]any{"reference_id": reference})
	return entry
}

func cardAudit(mode ports.CardMode, principal domain.Principal, card *domain.VirtualCard, req ports.CardInput, err error) *domain.AuditLog {
	action := domain.AuditActionCardValidate
	if mode == ports.CardModeCharge {
		action = domain.AuditActionCardCharge
	}

	meta := map[string]any{"mode": mode.String()}
	if req.CardNumber != "" {
		meta["card"] = logger.MaskCard(req.CardNumber)
	}
	if req.Amount != nil {
		meta["amount"] = req.Amount.StringFixed(domain.MoneyScale)
	}
	if req.MerchantID != "" {
		meta["merchant_id"] = req.MerchantID
	}

	entry := &domain.AuditLog{
		Action:    action,
		Outcome:   domain.AuditOutcomeSuccess,
		UserID:    &principal.UserID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
	if card != nil {
		entry.ResourceID = card.ID.String()
	}
	if err != nil {
		entry.Outcome = domain.AuditOutcomeFailure
		entry.ErrorCode = apperror.CodeOf(err)
	}
	entry.Metadata, _ = json.Marshal(meta)
	return entry
}
