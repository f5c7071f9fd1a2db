package service

import (
	"testing"
	"time"

	redisadapter "wallet-gateway/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// testEnv wires every service over memStore and a miniredis-backed guard and cache.
type testEnv struct {
	store     *memStore
	redis     *miniredis.Miniredis
	hashSvc   *Argon2HashService
	sigSvc    *HMACSignatureService
	audit     *auditRecorder
	metrics   *metricsRecorder
	webhooks  *webhookRecorder
	registry  *IdempotencyRegistry
	pipeline  *Pipeline
	limits    *LimitEngine
	payments  *PaymentServiceImpl
	transfers *TransferServiceImpl
	cards     *CardServiceImpl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		store:    newMemStore(),
		redis:    mr,
		hashSvc:  NewArgon2HashServiceWithParams(testArgon2Params),
		sigSvc:   NewHMACSignatureService(),
		audit:    &auditRecorder{},
		metrics:  newMetricsRecorder(),
		webhooks: &webhookRecorder{},
	}
	log := newTestLogger()

	env.registry = NewIdempotencyRegistry(
		memOperations{env.store},
		redisadapter.NewInFlightGuard(client),
		redisadapter.NewIdempotencyCache(client),
		30*time.Second, time.Hour, log,
	)
	env.pipeline = NewPipeline(memTransactor{env.store}, memOperations{env.store}, env.registry, nopPublisher{}, env.metrics, 5*time.Second, log)
	env.limits = NewLimitEngine(testLimits(), memTransactions{env.store})

	env.payments = NewPaymentService(env.pipeline, env.limits,
		memUsers{env.store}, memWallets{env.store}, memTransactions{env.store}, memPaymentRequests{env.store},
		env.hashSvc, env.webhooks, env.audit, log)
	env.transfers = NewTransferService(env.pipeline, env.limits,
		memUsers{env.store}, memWallets{env.store}, memTransactions{env.store},
		env.hashSvc, env.audit, log)
	env.cards = NewCardService(env.pipeline, env.limits,
		memCards{env.store}, memCardTransactions{env.store},
		env.hashSvc, env.sigSvc, testPepper, env.audit, log)

	return env
}

func (e *testEnv) pinHash(t *testing.T, pin string) *string {
	t.Helper()
	h, err := e.hashSvc.Hash(pin)
	require.NoError(t, err)
	return &h
}
