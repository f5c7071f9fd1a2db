package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Webhook request headers.
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
)

const maxLoggedResponseBody = 1024

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifierImpl implements ports.WebhookNotifier. Each delivery is a single
// attempt in its own goroutine with its own deadline.
type WebhookNotifierImpl struct {
	httpClient HTTPClient
	logRepo    ports.WebhookLogRepository
	sigSvc     ports.SignatureService
	metrics    ports.Metrics
	secret     string
	userAgent  string
	timeout    time.Duration
	now        func() time.Time
	log        zerolog.Logger
	wg         sync.WaitGroup
}

// NewWebhookNotifier creates a notifier. A nil httpClient uses one bounded by timeout.
func NewWebhookNotifier(
	httpClient HTTPClient,
	logRepo ports.WebhookLogRepository,
	sigSvc ports.SignatureService,
	metrics ports.Metrics,
	secret, userAgent string,
	timeout time.Duration,
	log zerolog.Logger,
) *WebhookNotifierImpl {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &WebhookNotifierImpl{
		httpClient: httpClient,
		logRepo:    logRepo,
		sigSvc:     sigSvc,
		metrics:    metrics,
		secret:     secret,
		userAgent:  userAgent,
		timeout:    timeout,
		now:        time.Now,
		log:        log.With().Str("component", "webhook").Logger(),
	}
}

// Notify schedules delivery of payload to target and returns immediately.
func (n *WebhookNotifierImpl) Notify(target string, payload domain.WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Str("reference_id", payload.ReferenceID).Msg("failed to encode webhook payload")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(target, payload, body)
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (n *WebhookNotifierImpl) Wait() {
	n.wg.Wait()
}

func (n *WebhookNotifierImpl) deliver(target string, payload domain.WebhookPayload, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	entry := &domain.WebhookLog{
		ID:               uuid.New(),
		PaymentRequestID: payload.PaymentRequestID,
		ReferenceID:      payload.ReferenceID,
		URL:              target,
		Payload:          body,
		CreatedAt:        n.now().UTC(),
	}

	status, respBody, err := n.post(ctx, target, body)
	switch {
	case err != nil:
		msg := err.Error()
		entry.Error = &msg
	case status < 200 || status >= 300:
		msg := fmt.Sprintf("unexpected status %d", status)
		entry.Error = &msg
	default:
		entry.Success = true
	}
	if status != 0 {
		entry.ResponseStatus = &status
		entry.ResponseBody = &respBody
	}

	result := "delivered"
	if !entry.Success {
		result = "failed"
		n.log.Warn().
			Str("reference_id", payload.ReferenceID).
			Str("url", target).
			Str("error", *entry.Error).
			Msg("webhook delivery failed")
	}
	n.metrics.ObserveWebhook(result)

	logCtx, logCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer logCancel()
	if err := n.logRepo.Create(logCtx, entry); err != nil {
		n.log.Error().Err(err).Str("reference_id", payload.ReferenceID).Msg("failed to persist webhook log")
	}
}

func (n *WebhookNotifierImpl) post(ctx context.Context, target string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}

	ts := strconv.FormatInt(n.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set(HeaderWebhookTimestamp, ts)
	if n.secret != "" {
		req.Header.Set(HeaderWebhookSignature, "sha256="+n.sigSvc.Sign(n.secret, string(body)))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponseBody))
	return resp.StatusCode, string(snippet), nil
}
