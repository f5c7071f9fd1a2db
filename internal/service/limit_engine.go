package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-gateway/config"
	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OperationClass selects the limit policy applied to an amount.
type OperationClass int

const (
	ClassTransferOut OperationClass = iota
	ClassMerchantDebit
	ClassCardPurchase
)

func (c OperationClass) String() string {
	switch c {
	case ClassTransferOut:
		return "transfer-out"
	case ClassMerchantDebit:
		return "merchant-debit"
	case ClassCardPurchase:
		return "card-purchase"
	}
	return "unknown"
}

type limitPolicy struct {
	floor   decimal.Decimal
	ceiling decimal.Decimal
	daily   decimal.Decimal // zero disables the rolling daily cap
}

// LimitDetails tells the caller which allowance was hit and by how much.
type LimitDetails struct {
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Authorization is the engine's go-ahead for one mutation. It is only valid inside
// the transaction it was computed in.
type Authorization struct {
	tx     pgx.Tx
	Amount decimal.Decimal

	// Wallet classes.
	NewBalance     decimal.Decimal
	DailyRemaining *decimal.Decimal

	// Card purchases.
	NewDailySpent   decimal.Decimal
	NewMonthlySpent decimal.Decimal
}

// ValidFor rejects an authorization presented in a different transaction.
func (a *Authorization) ValidFor(tx pgx.Tx) error {
	if a == nil || a.tx == nil || a.tx != tx {
		return errors.New("authorization is not bound to this transaction")
	}
	return nil
}

// LimitEngine enforces ceilings, balance floors and spend limits.
type LimitEngine struct {
	policies map[OperationClass]limitPolicy
	txRepo   ports.TransactionRepository
	now      func() time.Time
}

// NewLimitEngine builds the per-class policies from configuration.
func NewLimitEngine(cfg config.LimitsConfig, txRepo ports.TransactionRepository) *LimitEngine {
	return &LimitEngine{
		policies: map[OperationClass]limitPolicy{
			ClassTransferOut: {
				floor:   cfg.MinimumFloor,
				ceiling: cfg.TransferCeiling,
				daily:   cfg.DailyTransferLimit,
			},
			ClassMerchantDebit: {
				floor:   decimal.Zero,
				ceiling: cfg.MerchantCeiling,
			},
			ClassCardPurchase: {
				ceiling: cfg.CardCeiling,
			},
		},
		txRepo: txRepo,
		now:    time.Now,
	}
}

// CheckAmount validates an amount before any store access.
func (e *LimitEngine) CheckAmount(class OperationClass, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount("Amount must be greater than zero")
	}
	if !domain.HasValidScale(amount) {
		return apperror.ErrInvalidAmount("Amount must have at most 2 decimal places")
	}
	if ceiling := e.policies[class].ceiling; amount.GreaterThan(ceiling) {
		return apperror.ErrInvalidAmount(fmt.Sprintf("Amount exceeds the maximum of %s per operation", ceiling.StringFixed(domain.MoneyScale)))
	}
	return nil
}

// AuthorizeWallet checks a debit of amount against a wallet locked in tx.
func (e *LimitEngine) AuthorizeWallet(ctx context.Context, tx pgx.Tx, class OperationClass, wallet *domain.Wallet, amount decimal.Decimal) (*Authorization, error) {
	if err := e.CheckAmount(class, amount); err != nil {
		return nil, err
	}
	policy := e.policies[class]

	if wallet.Balance.LessThan(amount) {
		return nil, apperror.ErrInsufficientFunds()
	}
	remaining := wallet.Balance.Sub(amount)
	if remaining.LessThan(policy.floor) {
		return nil, apperror.ErrBelowMinimumBalance()
	}

	auth := &Authorization{tx: tx, Amount: amount, NewBalance: remaining}

	if policy.daily.IsPositive() {
		spent, err := e.txRepo.SumOutflowSince(ctx, tx, wallet.ID, domain.TransactionTypeTransferOut, startOfDay(e.now()))
		if err != nil {
			return nil, fmt.Errorf("sum daily outflow: %w", err)
		}
		left := policy.daily.Sub(spent)
		if amount.GreaterThan(left) {
			return nil, apperror.ErrDailyLimitExceeded().WithDetails(LimitDetails{
				Limit:     policy.daily,
				Spent:     spent,
				Remaining: decimal.Max(left, decimal.Zero),
			})
		}
		after := left.Sub(amount)
		auth.DailyRemaining = &after
	}

	return auth, nil
}

// AuthorizeCard checks a purchase of amount against a card locked in tx.
func (e *LimitEngine) AuthorizeCard(tx pgx.Tx, card *domain.VirtualCard, amount decimal.Decimal) (*Authorization, error) {
	if err := e.CheckAmount(ClassCardPurchase, amount); err != nil {
		return nil, err
	}
	if err := CardUsable(card, e.now()); err != nil {
		return nil, err
	}
	if err := CheckCardLimits(card, amount); err != nil {
		return nil, err
	}

	return &Authorization{
		tx:              tx,
		Amount:          amount,
		NewDailySpent:   card.CurrentDailySpent.Add(amount),
		NewMonthlySpent: card.CurrentMonthlySpent.Add(amount),
	}, nil
}

// CardUsable reports why a card cannot authorize anything, if it cannot.
func CardUsable(card *domain.VirtualCard, now time.Time) error {
	if card.Status != domain.CardStatusActive && card.Status != domain.CardStatusExpired {
		return apperror.ErrCardNotActive()
	}
	if card.IsExpired(now) {
		return apperror.ErrCardExpired()
	}
	return nil
}

// CheckCardLimits reports which spend limit amount would break, daily first.
func CheckCardLimits(card *domain.VirtualCard, amount decimal.Decimal) error {
	if amount.GreaterThan(card.DailyRemaining()) {
		return apperror.ErrDailyLimitExceeded().WithDetails(LimitDetails{
			Limit:     card.DailyLimit,
			Spent:     card.CurrentDailySpent,
			Remaining: decimal.Max(card.DailyRemaining(), decimal.Zero),
		})
	}
	if amount.GreaterThan(card.MonthlyRemaining()) {
		return apperror.ErrMonthlyLimitExceeded().WithDetails(LimitDetails{
			Limit:     card.MonthlyLimit,
			Spent:     card.CurrentMonthlySpent,
			Remaining: decimal.Max(card.MonthlyRemaining(), decimal.Zero),
		})
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
