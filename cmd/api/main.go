package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"wallet-gateway/config"
	httpHandler "wallet-gateway/internal/adapter/http/handler"
	"wallet-gateway/internal/adapter/http/middleware"
	natsMessaging "wallet-gateway/internal/adapter/messaging/nats"
	pgStorage "wallet-gateway/internal/adapter/storage/postgres"
	redisStorage "wallet-gateway/internal/adapter/storage/redis"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/internal/metrics"
	"wallet-gateway/internal/service"
	"wallet-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Gateway")

	ctx := context.Background()

	if cfg.Server.MigrateOnStart {
		if err := pgStorage.RunMigrations(ctx, cfg.Database.DSN(), "up", log); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Event publishing is optional
	nc, err := natsMessaging.Connect(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	publisher := natsMessaging.NewPublisher(nc, cfg.NATS.SubjectPrefix)
	defer publisher.Close()

	// Metrics
	var (
		mtr         *metrics.Metrics
		metricsHTTP http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mtr = metrics.New(reg)
		metricsHTTP = metrics.Handler(reg)
	}

	// Initialize repositories
	userRepo := pgStorage.NewUserRepo(pool)
	credRepo := pgStorage.NewCredentialRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	prRepo := pgStorage.NewPaymentRequestRepo(pool)
	cardRepo := pgStorage.NewCardRepo(pool)
	cardTxRepo := pgStorage.NewCardTransactionRepo(pool)
	opRepo := pgStorage.NewOperationRepo(pool)
	webhookRepo := pgStorage.NewWebhookLogRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	guard := redisStorage.NewInFlightGuard(rdb)
	replayCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	sessions := service.NewJWTSessionService(cfg.Security.SessionSecret, cfg.Security.SessionIssuer)
	gate := service.NewCredentialGate(credRepo, sessions, sigSvc, cfg.Security.CredentialPepper, log)

	auditSink := service.NewAuditSink(auditRepo, publisher, log)
	webhooks := service.NewWebhookNotifier(
		&http.Client{},
		webhookRepo,
		sigSvc,
		mtr,
		cfg.Webhook.SigningSecret,
		cfg.Webhook.UserAgent,
		cfg.Webhook.Timeout,
		log,
	)

	registry := service.NewIdempotencyRegistry(opRepo, guard, replayCache, cfg.Redis.InFlightTTL, cfg.Redis.ReplayTTL, log)
	pipeline := service.NewPipeline(transactor, opRepo, registry, publisher, mtr, cfg.Server.RequestTimeout, log)
	limits := service.NewLimitEngine(cfg.Limits, txRepo)

	// Initialize business services
	paymentSvc := service.NewPaymentService(pipeline, limits, userRepo, walletRepo, txRepo, prRepo, hashSvc, webhooks, auditSink, log)
	transferSvc := service.NewTransferService(pipeline, limits, userRepo, walletRepo, txRepo, hashSvc, auditSink, log)
	cardSvc := service.NewCardService(pipeline, limits, cardRepo, cardTxRepo, hashSvc, sigSvc, cfg.Security.CredentialPepper, auditSink, log)

	deps := httpHandler.RouterDeps{
		Gate:           gate,
		PaymentSvc:     paymentSvc,
		TransferSvc:    transferSvc,
		CardSvc:        cardSvc,
		AuditSink:      auditSink,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
		MetricsHandler: metricsHTTP,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         log,
	}
	if mtr != nil {
		deps.HTTPObserver = mtr
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimitStore = rateLimitStore
		deps.RateLimit = middleware.RateLimitRule{Limit: int64(cfg.RateLimit.Requests), Window: cfg.RateLimit.Window}
	}
	router := httpHandler.SetupRouter(deps)

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain background deliveries before the stores close.
	webhooks.Wait()
	auditSink.Wait()

	log.Info().Msg("Server exited")
}
