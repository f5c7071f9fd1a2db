package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/logger"
	"wallet-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderAPIKey         = "X-API-Key"
	HeaderAuthorization  = "Authorization"
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	// Context keys
	CtxRequestID = "request_id"
	CtxPrincipal = "principal"
)

// Principal returns the principal resolved by CredentialGate.
func Principal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(CtxPrincipal)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

// RequestID tags the request with X-Request-ID, generating one when absent,
// and attaches a request-scoped logger to the request context.
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)

		reqLog := log.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if p, ok := Principal(c); ok {
			event = event.Str("user_id", p.UserID.String()).Str("scheme", string(p.Scheme))
		}
		event.
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}

// HTTPObserver receives one observation per served request.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// Metrics reports method, matched route, status and latency of every request.
func Metrics(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obs.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// CORS sets permissive cross-origin headers on every response.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, x-api-key, x-client-info, apikey, content-type, idempotency-key")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Next()
	}
}

// MethodGuard answers preflight requests and rejects anything but POST.
func MethodGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost:
			c.Next()
		case http.MethodOptions:
			c.AbortWithStatus(http.StatusNoContent)
		default:
			c.Header("Allow", "POST, OPTIONS")
			response.Error(c, apperror.ErrMethodNotAllowed())
		}
	}
}

// CredentialGate resolves the request's credential headers to a principal.
// Failures are written to the audit sink when one is given.
func CredentialGate(gate ports.CredentialGate, audit ports.AuditSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		principal, err := gate.Resolve(c.Request.Context(), apiKey, c.GetHeader(HeaderAuthorization))
		if err != nil {
			if audit != nil {
				audit.Record(authFailure(c, apiKey, err))
			}
			response.Error(c, err)
			return
		}

		c.Set(CtxPrincipal, *principal)
		c.Next()
	}
}

func authFailure(c *gin.Context, apiKey string, err error) *domain.AuditLog {
	entry := &domain.AuditLog{
		Action:    domain.AuditActionAuthFailure,
		Outcome:   domain.AuditOutcomeFailure,
		ErrorCode: apperror.CodeOf(err),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	meta := map[string]string{"path": c.Request.URL.Path}
	if apiKey != "" {
		meta["api_key"] = logger.MaskKey(apiKey)
	}
	entry.Metadata, _ = json.Marshal(meta)
	return entry
}
