package service

import (
	"context"
	"io"
	"net/http"
	"sync"

	"wallet-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// mockTx implements pgx.Tx for testing
type mockTx struct {
	pgx.Tx
	mu         sync.Mutex
	committed  bool
	rolledBack bool
	commitErr  error
}

func (m *mockTx) Rollback(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}

func (m *mockTx) Commit(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// auditRecorder is a synchronous ports.AuditSink.
type auditRecorder struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (a *auditRecorder) Record(entry *domain.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *auditRecorder) last() *domain.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return nil
	}
	return a.entries[len(a.entries)-1]
}

// metricsRecorder is a ports.Metrics counting observations.
type metricsRecorder struct {
	mu         sync.Mutex
	operations map[string]int
	replays    int
	webhooks   map[string]int
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{operations: map[string]int{}, webhooks: map[string]int{}}
}

func (m *metricsRecorder) ObserveOperation(kind domain.OperationKind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[string(kind)+"/"+outcome]++
}

func (m *metricsRecorder) ObserveReplay(domain.OperationKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replays++
}

func (m *metricsRecorder) ObserveWebhook(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[result]++
}

func (m *metricsRecorder) operation(kind domain.OperationKind, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operations[string(kind)+"/"+outcome]
}

// nopPublisher discards events.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }

// webhookRecorder is a synchronous ports.WebhookNotifier.
type webhookRecorder struct {
	mu   sync.Mutex
	sent []domain.WebhookPayload
	urls []string
}

func (w *webhookRecorder) Notify(target string, payload domain.WebhookPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.urls = append(w.urls, target)
	w.sent = append(w.sent, payload)
}
