package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for postgres with row locks held until
// commit, buffered writes and a blocking primary key on operation records.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	wallets  map[uuid.UUID]domain.Wallet // by user id
	txs      []domain.Transaction
	prs      []domain.PaymentRequest
	cards    map[uuid.UUID]domain.VirtualCard
	cardTxs  []domain.VirtualCardTransaction
	ops      map[string]domain.OperationRecord
	rowLocks map[string]*sync.Mutex

	failNext  error // returned by a buffered write once failAfter reaches zero
	failAfter int   // buffered writes allowed through before failNext fires
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*domain.User{},
		wallets:  map[uuid.UUID]domain.Wallet{},
		cards:    map[uuid.UUID]domain.VirtualCard{},
		ops:      map[string]domain.OperationRecord{},
		rowLocks: map[string]*sync.Mutex{},
	}
}

func (s *memStore) addUser(email string, balance string, pinHash *string) (*domain.User, *domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &domain.User{ID: uuid.New(), Email: email}
	s.users[email] = u
	w := domain.Wallet{
		ID:       uuid.New(),
		UserID:   u.ID,
		Balance:  decimal.RequireFromString(balance),
		Currency: "HC",
		PinHash:  pinHash,
	}
	s.wallets[u.ID] = w
	return u, &w
}

func (s *memStore) addCard(card domain.VirtualCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = card
}

func (s *memStore) balance(userID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[userID].Balance
}

func (s *memStore) card(id uuid.UUID) domain.VirtualCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards[id]
}

func (s *memStore) transactions(ref string) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, t := range s.txs {
		if t.ReferenceID == ref {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) cardTransactions(typ domain.CardTransactionType) []domain.VirtualCardTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VirtualCardTransaction
	for _, t := range s.cardTxs {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) operation(issuer uuid.UUID, ref string) (domain.OperationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ops[domain.BuildIdempotencyKey(issuer, ref)]
	return rec, ok
}

func (s *memStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[key] = l
	}
	return l
}

func (s *memStore) takeFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext == nil {
		return nil
	}
	if s.failAfter > 0 {
		s.failAfter--
		return nil
	}
	err := s.failNext
	s.failNext = nil
	return err
}

// memTx buffers writes and holds row locks until Commit or Rollback.
type memTx struct {
	pgx.Tx
	store  *memStore
	held   map[string]*sync.Mutex
	writes []func()
	done   bool
}

func (t *memTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	l := t.store.lockFor(key)
	l.Lock()
	t.held[key] = l
}

func (t *memTx) buffer(fn func()) error {
	if err := t.store.takeFailure(); err != nil {
		return err
	}
	t.writes = append(t.writes, fn)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for _, w := range t.writes {
		w()
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	t.writes = nil
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = nil
}

func asMemTx(tx pgx.Tx) *memTx {
	mt, ok := tx.(*memTx)
	if !ok {
		panic(fmt.Sprintf("unexpected tx type %T", tx))
	}
	return mt
}

// ---- ports implementations ----

type memTransactor struct{ s *memStore }

func (m memTransactor) Begin(context.Context) (pgx.Tx, error) {
	return &memTx{store: m.s, held: map[string]*sync.Mutex{}}, nil
}

type memUsers struct{ s *memStore }

func (m memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type memWallets struct{ s *memStore }

func (m memWallets) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	w, ok := m.s.wallets[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m memWallets) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	asMemTx(tx).lock("wallet:" + userID.String())
	return m.GetByUserID(ctx, userID)
}

func (m memWallets) UpdateBalance(_ context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	return asMemTx(tx).buffer(func() {
		for uid, w := range m.s.wallets {
			if w.ID == walletID {
				w.Balance = balance
				m.s.wallets[uid] = w
			}
		}
	})
}

type memTransactions struct{ s *memStore }

func (m memTransactions) Create(_ context.Context, tx pgx.Tx, t *domain.Transaction) error {
	cp := *t
	return asMemTx(tx).buffer(func() { m.s.txs = append(m.s.txs, cp) })
}

func (m memTransactions) SumOutflowSince(_ context.Context, _ pgx.Tx, walletID uuid.UUID, typ domain.TransactionType, since time.Time) (decimal.Decimal, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sum := decimal.Zero
	for _, t := range m.s.txs {
		if t.WalletID == walletID && t.Type == typ && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.Amount.Neg())
		}
	}
	return sum, nil
}

type memPaymentRequests struct{ s *memStore }

func (m memPaymentRequests) Create(_ context.Context, tx pgx.Tx, pr *domain.PaymentRequest) error {
	mt := asMemTx(tx)
	mt.lock("payment:" + domain.BuildIdempotencyKey(pr.IssuerID, pr.ExternalOrderID))
	m.s.mu.Lock()
	for _, existing := range m.s.prs {
		if existing.IssuerID == pr.IssuerID && existing.ExternalOrderID == pr.ExternalOrderID {
			m.s.mu.Unlock()
			return ports.ErrDuplicateReference
		}
	}
	m.s.mu.Unlock()
	cp := *pr
	return mt.buffer(func() { m.s.prs = append(m.s.prs, cp) })
}

type memCards struct{ s *memStore }

func (m memCards) GetByFingerprint(_ context.Context, fp string) (*domain.VirtualCard, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.cards {
		if c.Fingerprint == fp {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memCards) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.VirtualCard, error) {
	asMemTx(tx).lock("card:" + id.String())
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.cards[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m memCards) GetByIDAndUser(_ context.Context, id, userID uuid.UUID) (*domain.VirtualCard, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.cards[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return &c, nil
}

func (m memCards) UpdateSpent(_ context.Context, tx pgx.Tx, id uuid.UUID, daily, monthly decimal.Decimal) error {
	return asMemTx(tx).buffer(func() {
		c := m.s.cards[id]
		if daily.GreaterThan(c.DailyLimit) || monthly.GreaterThan(c.MonthlyLimit) {
			panic("spend counter check constraint violated")
		}
		c.CurrentDailySpent = daily
		c.CurrentMonthlySpent = monthly
		m.s.cards[id] = c
	})
}

func (m memCards) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, status domain.CardStatus) error {
	return asMemTx(tx).buffer(func() {
		c := m.s.cards[id]
		c.Status = status
		m.s.cards[id] = c
	})
}

type memCardTransactions struct{ s *memStore }

func (m memCardTransactions) Create(_ context.Context, tx pgx.Tx, ct *domain.VirtualCardTransaction) error {
	cp := *ct
	return asMemTx(tx).buffer(func() { m.s.cardTxs = append(m.s.cardTxs, cp) })
}

func (m memCardTransactions) Record(_ context.Context, ct *domain.VirtualCardTransaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.cardTxs = append(m.s.cardTxs, *ct)
	return nil
}

func (m memCardTransactions) ListByUser(_ context.Context, userID uuid.UUID, cardID *uuid.UUID, limit, offset int) ([]domain.VirtualCardTransaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []domain.VirtualCardTransaction{}
	// newest first: entries are appended in commit order
	for i := len(m.s.cardTxs) - 1; i >= 0; i-- {
		t := m.s.cardTxs[i]
		if t.UserID != userID || (cardID != nil && t.CardID != *cardID) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

type memOperations struct{ s *memStore }

func (m memOperations) Get(_ context.Context, issuer uuid.UUID, ref string) (*domain.OperationRecord, error) {
	rec, ok := m.s.operation(issuer, ref)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m memOperations) InsertPending(_ context.Context, tx pgx.Tx, rec *domain.OperationRecord) error {
	key := domain.BuildIdempotencyKey(rec.IssuerID, rec.ReferenceID)
	mt := asMemTx(tx)
	mt.lock("op:" + key)
	if _, exists := m.s.operation(rec.IssuerID, rec.ReferenceID); exists {
		return ports.ErrDuplicateReference
	}
	cp := *rec
	return mt.buffer(func() { m.s.ops[key] = cp })
}

func (m memOperations) Complete(_ context.Context, tx pgx.Tx, issuer uuid.UUID, ref string, response json.RawMessage) error {
	key := domain.BuildIdempotencyKey(issuer, ref)
	return asMemTx(tx).buffer(func() {
		rec := m.s.ops[key]
		rec.Status = domain.OperationCompleted
		rec.Response = response
		m.s.ops[key] = rec
	})
}

func (m memOperations) RecordFailure(_ context.Context, rec *domain.OperationRecord) error {
	key := domain.BuildIdempotencyKey(rec.IssuerID, rec.ReferenceID)
	l := m.s.lockFor("op:" + key)
	l.Lock()
	defer l.Unlock()
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.ops[key]; !exists {
		m.s.ops[key] = *rec
	}
	return nil
}

var errInjected = errors.New("injected storage failure")

// failWrite makes the (after+1)th buffered write from now fail with errInjected.
func (s *memStore) failWrite(after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = errInjected
	s.failAfter = after
}
