package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/config"
	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/handler"
	"github.com/absherpay/absher-bfa-go/internal/infra/cache"
	"github.com/absherpay/absher-bfa-go/internal/infra/client"
	"github.com/absherpay/absher-bfa-go/internal/infra/events"
	"github.com/absherpay/absher-bfa-go/internal/infra/firebase"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"
	"github.com/absherpay/absher-bfa-go/internal/port"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("report_cache_ttl", cfg.ReportCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Bool("dev_tools", cfg.DevTools),
	)

	if cfg.FirebaseURL == "" {
		logger.Fatal("FIREBASE_URL is required")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "absher-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("external-apis")

	// --- Stores & clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	store := firebase.NewClient(httpClient, cfg.FirebaseURL, cfg.FirebaseAuth, cb, resilienceCfg, logger)
	agentClient := client.NewAgentClient(httpClient, cfg.AgentAPIURL, cb, resilienceCfg)

	// --- Caches ---
	var reportCache port.ReportCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		reportCache = cache.NewRedisReport(rdb, cfg.ReportCacheTTL, logger)
		logger.Info("report cache backed by Redis", zap.String("addr", cfg.RedisAddr))
	} else {
		reportCache = cache.NewMemoryReport(cfg.ReportCacheTTL)
		logger.Info("report cache in memory")
	}
	idempotencyCache := cache.New[*domain.BulkPaymentResult](cfg.CacheTTL)

	// --- Events ---
	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPaymentTopic, logger)
		if err != nil {
			logger.Fatal("failed to start kafka producer", zap.Error(err))
		}
		publisher = kp
		logger.Info("kafka publisher enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaPaymentTopic),
		)
	} else {
		publisher = events.NopPublisher{}
		logger.Warn("kafka not configured, payment events disabled")
	}
	defer publisher.Close()

	// --- Services ---
	billSvc := service.NewBillService(store, store, store, cfg.PenaltySchedule, metrics, logger)
	paymentSvc := service.NewPaymentService(store, store, store, store, publisher, reportCache, idempotencyCache, cfg.PenaltySchedule, metrics, logger)
	reportSvc := service.NewReportService(store, reportCache, metrics, logger)
	accountSvc := service.NewBankAccountService(store, logger)
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.OTPTTL, logger)
	assistantSvc := service.NewAssistant(store, store, agentClient, cfg.PenaltySchedule, metrics, logger)

	var devSvc *service.DevToolsService
	if cfg.DevTools {
		devSvc = service.NewDevToolsService(store, store, logger)
		logger.Warn("dev tools enabled, do not run this in production")
	}

	// --- Reconciler ---
	reconCtx, reconCancel := context.WithCancel(context.Background())
	defer reconCancel()

	reconciler := service.NewReconciler(store, store, store, paymentSvc, cfg.ReconcileInterval, cfg.OutboxMaxAttempts, metrics, logger)
	go reconciler.Run(reconCtx)

	// --- Router ---
	router := handler.NewRouter(&handler.Services{
		Bills:     billSvc,
		Payments:  paymentSvc,
		Reports:   reportSvc,
		Accounts:  accountSvc,
		Auth:      authSvc,
		Assistant: assistantSvc,
		DevTools:  devSvc,
		Wallets:   store,
	}, metrics, cfg.DevTools, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	reconCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
