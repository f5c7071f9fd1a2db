package handler

import (
	"net/http"

	"wallet-gateway/internal/adapter/http/middleware"
	"wallet-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20 // 1 MB request body limit

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Gate           ports.CredentialGate
	PaymentSvc     ports.PaymentService
	TransferSvc    ports.TransferService
	CardSvc        ports.CardService
	AuditSink      ports.AuditSink           // nil = auth failures not audited
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	RateLimit      middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	HTTPObserver   middleware.HTTPObserver // nil = no request metrics
	MetricsHandler http.Handler            // nil = /metrics not served
	MetricsPath    string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.HTTPObserver != nil {
		r.Use(middleware.Metrics(deps.HTTPObserver))
	}
	r.Use(middleware.CORS())
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.MetricsHandler))
	}

	// API v1 routes: preflight and method check happen before authentication.
	api := []gin.HandlerFunc{
		middleware.MethodGuard(),
		middleware.CredentialGate(deps.Gate, deps.AuditSink),
	}
	if deps.RateLimitStore != nil && deps.RateLimit.Limit > 0 {
		api = append(api, middleware.RateLimiter(deps.RateLimitStore, "api", deps.RateLimit, deps.Logger))
	}
	v1 := r.Group("/api/v1", api...)

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	transferHandler := NewTransferHandler(deps.TransferSvc)
	cardHandler := NewCardHandler(deps.CardSvc)

	v1.Any("/payments", paymentHandler.Create)
	v1.Any("/transfers", transferHandler.Create)

	cards := v1.Group("/cards")
	{
		cards.Any("/validate", cardHandler.Validate)
		cards.Any("/charge", cardHandler.Charge)
		cards.Any("/limits", cardHandler.Limits)
		cards.Any("/deactivate", cardHandler.Deactivate)
		cards.Any("/transactions", cardHandler.History)
	}

	return r
}
