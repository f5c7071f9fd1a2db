package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCardNumber = "4111111111111111"
	testCardPin    = "1234"
)

// addTestCard stores testCard() under testCardNumber and testCardPin.
func (e *testEnv) addTestCard(t *testing.T, mutate func(*domain.VirtualCard)) *domain.VirtualCard {
	t.Helper()
	card := testCard()
	card.ExpiryDate = time.Now().AddDate(2, 0, 0)
	card.Fingerprint = CardFingerprint(e.sigSvc, testPepper, testCardNumber)
	card.PinHash = *e.pinHash(t, testCardPin)
	if mutate != nil {
		mutate(card)
	}
	e.store.addCard(*card)
	return card
}

func cardInput(amount string) ports.CardInput {
	in := ports.CardInput{
		CardNumber: testCardNumber,
		Pin:        testCardPin,
		MerchantID: "merchant-42",
		IPAddress:  "203.0.113.7",
		UserAgent:  "pos/1.0",
	}
	if amount != "" {
		a := dec(amount)
		in.Amount = &a
	}
	return in
}

// ==================== Validate Tests ====================

func TestCardService_Validate_Success(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, nil)

	res, err := env.cards.Validate(context.Background(), sessionPrincipal(card.UserID), cardInput("200"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, card.ID, res.CardID)
	assert.True(t, res.DailyRemaining.Equal(dec("200")))
	assert.True(t, res.MonthlyRemaining.Equal(dec("10000")))
	assert.Nil(t, res.TransactionID)

	// validation spends nothing
	assert.True(t, env.store.card(card.ID).CurrentDailySpent.Equal(dec("4800")))

	recs := env.store.cardTransactions(domain.CardTransactionValidation)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TransactionStatusCompleted, recs[0].Status)
	assert.Regexp(t, `^VAL_\d+_`, recs[0].ReferenceID)
	assert.JSONEq(t, `{"merchant_id":"merchant-42","ip_address":"203.0.113.7","user_agent":"pos/1.0"}`, string(recs[0].MerchantInfo))

	audit := env.audit.last()
	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionCardValidate, audit.Action)
	assert.Contains(t, string(audit.Metadata), "4111********1111")
	assert.NotContains(t, string(audit.Metadata), testCardNumber)
}

func TestCardService_Validate_OverLimitIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, nil)

	_, err := env.cards.Validate(context.Background(), sessionPrincipal(card.UserID), cardInput("300"))
	assert.Equal(t, apperror.CodeDailyLimitExceeded, apperror.CodeOf(err))

	recs := env.store.cardTransactions(domain.CardTransactionValidation)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TransactionStatusFailed, recs[0].Status)
	assert.True(t, recs[0].Amount.Equal(dec("300")))
}

func TestCardService_Validate_CardState(t *testing.T) {
	past := time.Now().AddDate(0, -1, 0)

	tests := []struct {
		name     string
		mutate   func(*domain.VirtualCard)
		wantCode string
	}{
		{"blocked", func(c *domain.VirtualCard) { c.Status = domain.CardStatusBlocked }, apperror.CodeCardNotActive},
		{"inactive", func(c *domain.VirtualCard) { c.Status = domain.CardStatusInactive }, apperror.CodeCardNotActive},
		{"blocked and past expiry", func(c *domain.VirtualCard) { c.Status = domain.CardStatusBlocked; c.ExpiryDate = past }, apperror.CodeCardNotActive},
		{"past expiry", func(c *domain.VirtualCard) { c.ExpiryDate = past }, apperror.CodeCardExpired},
		{"marked expired", func(c *domain.VirtualCard) { c.Status = domain.CardStatusExpired }, apperror.CodeCardExpired},
		{"monthly exhausted", func(c *domain.VirtualCard) { c.CurrentDailySpent = decimal.Zero; c.CurrentMonthlySpent = dec("19950") }, apperror.CodeMonthlyLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			card := env.addTestCard(t, tt.mutate)

			_, err := env.cards.Validate(context.Background(), sessionPrincipal(card.UserID), cardInput("100"))
			assert.Equal(t, tt.wantCode, apperror.CodeOf(err))
		})
	}
}

func TestCardService_Validate_Credentials(t *testing.T) {
	tests := []struct {
		name     string
		number   string
		pin      string
		wantCode string
	}{
		{"short number", "4111", testCardPin, apperror.CodeInvalidFormat},
		{"letters in number", "4111x11111111111", testCardPin, apperror.CodeInvalidFormat},
		{"five digit pin", testCardNumber, "12345", apperror.CodeInvalidFormat},
		{"wrong pin", testCardNumber, "9999", apperror.CodeInvalidCredentials},
		{"unknown card", "5500000000000004", testCardPin, apperror.CodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			card := env.addTestCard(t, nil)

			in := cardInput("")
			in.CardNumber = tt.number
			in.Pin = tt.pin

			_, err := env.cards.Validate(context.Background(), sessionPrincipal(card.UserID), in)
			assert.Equal(t, tt.wantCode, apperror.CodeOf(err))
			assert.Empty(t, env.store.cardTransactions(domain.CardTransactionValidation))
		})
	}
}

// ==================== Charge Tests ====================

func TestCardService_Charge_DailyBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	over := cardInput("300")
	over.IdempotencyKey = "over-1"
	_, err := env.cards.Charge(ctx, principal, over)
	assert.Equal(t, apperror.CodeDailyLimitExceeded, apperror.CodeOf(err))
	assert.True(t, env.store.card(card.ID).CurrentDailySpent.Equal(dec("4800")))

	res, err := env.cards.Charge(ctx, principal, cardInput("200"))
	require.NoError(t, err)
	require.NotNil(t, res.TransactionID)
	assert.True(t, res.AmountCharged.Equal(dec("200")))
	assert.True(t, res.NewDailySpent.Equal(dec("5000")))
	assert.True(t, res.NewMonthlySpent.Equal(dec("10200")))
	assert.True(t, res.DailyRemaining.IsZero())
	assert.Regexp(t, `^PAY_\d+_`, res.ReferenceID)

	stored := env.store.card(card.ID)
	assert.True(t, stored.CurrentDailySpent.Equal(dec("5000")))
	assert.True(t, stored.CurrentMonthlySpent.Equal(dec("10200")))

	purchases := env.store.cardTransactions(domain.CardTransactionPurchase)
	require.Len(t, purchases, 1)
	assert.Equal(t, *res.TransactionID, purchases[0].ID)

	over = cardInput("0.01")
	over.IdempotencyKey = "over-2"
	_, err = env.cards.Charge(ctx, principal, over)
	assert.Equal(t, apperror.CodeDailyLimitExceeded, apperror.CodeOf(err))

	audit := env.audit.last()
	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionCardCharge, audit.Action)
	assert.Equal(t, domain.AuditOutcomeFailure, audit.Outcome)
}

func TestCardService_Charge_RequiresAmount(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, nil)

	_, err := env.cards.Charge(context.Background(), sessionPrincipal(card.UserID), cardInput(""))
	assert.Equal(t, apperror.CodeMissingFields, apperror.CodeOf(err))

	_, err = env.cards.Charge(context.Background(), sessionPrincipal(card.UserID), cardInput("-1"))
	assert.Equal(t, apperror.CodeInvalidAmount, apperror.CodeOf(err))
}

func TestCardService_Charge_BlockedCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, func(c *domain.VirtualCard) { c.Status = domain.CardStatusBlocked })

	_, err := env.cards.Charge(context.Background(), sessionPrincipal(card.UserID), cardInput("10"))
	assert.Equal(t, apperror.CodeCardNotActive, apperror.CodeOf(err))
	assert.Empty(t, env.store.cardTransactions(domain.CardTransactionPurchase))
}

func TestCardService_Charge_Replay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	in := cardInput("50")
	in.IdempotencyKey = "pos-receipt-77"

	first, err := env.cards.Charge(ctx, principal, in)
	require.NoError(t, err)
	assert.Equal(t, "pos-receipt-77", first.ReferenceID)

	second, err := env.cards.Charge(ctx, principal, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, *first.TransactionID, *second.TransactionID)
	assert.True(t, first.NewDailySpent.Equal(*second.NewDailySpent))

	assert.True(t, env.store.card(card.ID).CurrentDailySpent.Equal(dec("4850")))
	assert.Len(t, env.store.cardTransactions(domain.CardTransactionPurchase), 1)
}

func TestCardService_Charge_KeylessSameMillisecond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	frozen := time.Now()
	env.cards.now = func() time.Time { return frozen }
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	first, err := env.cards.Charge(ctx, principal, cardInput("50"))
	require.NoError(t, err)
	second, err := env.cards.Charge(ctx, principal, cardInput("50"))
	require.NoError(t, err)

	assert.False(t, second.Replayed)
	assert.NotEqual(t, first.ReferenceID, second.ReferenceID)
	assert.NotEqual(t, *first.TransactionID, *second.TransactionID)
	assert.True(t, second.NewDailySpent.Equal(dec("4900")))
	assert.True(t, env.store.card(card.ID).CurrentDailySpent.Equal(dec("4900")))
	assert.Len(t, env.store.cardTransactions(domain.CardTransactionPurchase), 2)
}

func TestCardService_Charge_ConcurrentStaysWithinLimit(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := cardInput("50")
			in.IdempotencyKey = fmt.Sprintf("burst-%d", i)
			_, err := env.cards.Charge(context.Background(), principal, in)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.Equal(t, apperror.CodeDailyLimitExceeded, apperror.CodeOf(err))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, successes)
	assert.True(t, env.store.card(card.ID).CurrentDailySpent.Equal(dec("5000")))
	assert.Len(t, env.store.cardTransactions(domain.CardTransactionPurchase), 4)
}

// ==================== Limits Tests ====================

func TestCardService_Limits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	res, err := env.cards.Limits(ctx, principal, card.ID, dec("100"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Error)
	assert.True(t, res.DailyRemaining.Equal(dec("200")))

	res, err = env.cards.Limits(ctx, principal, card.ID, dec("300"))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperror.CodeDailyLimitExceeded, res.Error)

	res, err = env.cards.Limits(ctx, principal, card.ID, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	_, err = env.cards.Limits(ctx, sessionPrincipal(uuid.New()), card.ID, dec("1"))
	assert.Equal(t, apperror.CodeCardNotFound, apperror.CodeOf(err))

	audit := env.audit.last()
	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionCardLimits, audit.Action)
	assert.Equal(t, domain.AuditOutcomeFailure, audit.Outcome)
}

func TestCardService_Limits_BlockedCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, func(c *domain.VirtualCard) { c.Status = domain.CardStatusBlocked })

	res, err := env.cards.Limits(context.Background(), sessionPrincipal(card.UserID), card.ID, dec("1"))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperror.CodeCardNotActive, res.Error)
}

// ==================== Deactivate Tests ====================

func TestCardService_Deactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)
	reason := "lost"

	res, err := env.cards.Deactivate(ctx, principal, ports.CardDeactivateInput{CardID: card.ID, Reason: &reason, IPAddress: "203.0.113.7"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Replayed)
	assert.Equal(t, domain.CardStatusInactive, res.Status)
	assert.Regexp(t, `^DEA_\d+_[0-9a-f]{8}_[0-9a-f]{12}$`, res.ReferenceID)
	assert.Equal(t, domain.CardStatusInactive, env.store.card(card.ID).Status)

	entries := env.store.cardTransactions(domain.CardTransactionDeactivation)
	require.Len(t, entries, 1)
	assert.Equal(t, res.TransactionID, entries[0].ID)
	assert.True(t, entries[0].Amount.IsZero())
	require.NotNil(t, entries[0].Description)
	assert.Equal(t, "lost", *entries[0].Description)

	audit := env.audit.last()
	require.NotNil(t, audit)
	assert.Equal(t, domain.AuditActionCardDeactivate, audit.Action)
	assert.Equal(t, domain.AuditOutcomeSuccess, audit.Outcome)

	// an inactive card authorizes nothing
	_, err = env.cards.Charge(ctx, principal, cardInput("10"))
	assert.Equal(t, apperror.CodeCardNotActive, apperror.CodeOf(err))

	_, err = env.cards.Deactivate(ctx, principal, ports.CardDeactivateInput{CardID: card.ID})
	assert.Equal(t, apperror.CodeCardNotActive, apperror.CodeOf(err))
	assert.Len(t, env.store.cardTransactions(domain.CardTransactionDeactivation), 1)
}

func TestCardService_Deactivate_Replay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)
	in := ports.CardDeactivateInput{CardID: card.ID, IdempotencyKey: "lost-card-1"}

	first, err := env.cards.Deactivate(ctx, principal, in)
	require.NoError(t, err)
	second, err := env.cards.Deactivate(ctx, principal, in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Len(t, env.store.cardTransactions(domain.CardTransactionDeactivation), 1)
}

func TestCardService_Deactivate_OtherUsersCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, nil)

	_, err := env.cards.Deactivate(context.Background(), sessionPrincipal(uuid.New()), ports.CardDeactivateInput{CardID: card.ID})
	assert.Equal(t, apperror.CodeCardNotFound, apperror.CodeOf(err))
	assert.Equal(t, domain.CardStatusActive, env.store.card(card.ID).Status)
	assert.Empty(t, env.store.cardTransactions(domain.CardTransactionDeactivation))
}

func TestCardService_Deactivate_BlockedCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, func(c *domain.VirtualCard) { c.Status = domain.CardStatusBlocked })

	_, err := env.cards.Deactivate(context.Background(), sessionPrincipal(card.UserID), ports.CardDeactivateInput{CardID: card.ID, IdempotencyKey: "dea-1"})
	assert.Equal(t, apperror.CodeCardNotActive, apperror.CodeOf(err))
	assert.Equal(t, domain.CardStatusBlocked, env.store.card(card.ID).Status)

	rec, ok := env.store.operation(card.UserID, "dea-1")
	require.True(t, ok)
	assert.Equal(t, domain.OperationFailed, rec.Status)
	assert.Equal(t, domain.OperationCardDeactivate, rec.Kind)
}

// ==================== History Tests ====================

func TestCardService_History(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	for i := 0; i < 3; i++ {
		in := cardInput("10")
		in.IdempotencyKey = fmt.Sprintf("hist-%d", i)
		_, err := env.cards.Charge(ctx, principal, in)
		require.NoError(t, err)
	}
	_, err := env.cards.Deactivate(ctx, principal, ports.CardDeactivateInput{CardID: card.ID})
	require.NoError(t, err)

	other := env.addTestCard(t, func(c *domain.VirtualCard) { c.Fingerprint = "someone-else" })
	require.NoError(t, memCardTransactions{env.store}.Record(ctx, &domain.VirtualCardTransaction{
		ID: uuid.New(), CardID: other.ID, UserID: other.UserID, Type: domain.CardTransactionPurchase,
	}))

	page, err := env.cards.History(ctx, principal, ports.CardHistoryQuery{CardID: &card.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, domain.CardTransactionDeactivation, page.Transactions[0].Type)
	assert.Equal(t, "hist-2", page.Transactions[1].ReferenceID)

	next, err := env.cards.History(ctx, principal, ports.CardHistoryQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, next.Transactions, 2)
	assert.Equal(t, "hist-1", next.Transactions[0].ReferenceID)
	assert.Equal(t, "hist-0", next.Transactions[1].ReferenceID)

	all, err := env.cards.History(ctx, principal, ports.CardHistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, 50, all.Limit)
	assert.Len(t, all.Transactions, 4)
	for _, e := range all.Transactions {
		assert.Equal(t, card.UserID, e.UserID)
	}
}

func TestCardService_History_Rejections(t *testing.T) {
	env := newTestEnv(t)
	card := env.addTestCard(t, nil)
	principal := sessionPrincipal(card.UserID)

	_, err := env.cards.History(context.Background(), principal, ports.CardHistoryQuery{Limit: 101})
	assert.Equal(t, apperror.CodeInvalidFormat, apperror.CodeOf(err))

	_, err = env.cards.History(context.Background(), principal, ports.CardHistoryQuery{Offset: -1})
	assert.Equal(t, apperror.CodeInvalidFormat, apperror.CodeOf(err))

	_, err = env.cards.History(context.Background(), sessionPrincipal(uuid.New()), ports.CardHistoryQuery{CardID: &card.ID})
	assert.Equal(t, apperror.CodeCardNotFound, apperror.CodeOf(err))
}
