package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/config"
	"github.com/rpironato1/credit-ledger-go/internal/handler"
	"github.com/rpironato1/credit-ledger-go/internal/infra/cache"
	"github.com/rpironato1/credit-ledger-go/internal/infra/gateway"
	"github.com/rpironato1/credit-ledger-go/internal/infra/observability"
	"github.com/rpironato1/credit-ledger-go/internal/infra/resilience"
	"github.com/rpironato1/credit-ledger-go/internal/infra/store"
	"github.com/rpironato1/credit-ledger-go/internal/infra/supabase"
	"github.com/rpironato1/credit-ledger-go/internal/port"
	"github.com/rpironato1/credit-ledger-go/internal/service"
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
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.String("data_file", cfg.DataFile),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Bool("dev_tools", cfg.DevTools),
		zap.Float64("consumption_failure_rate", cfg.ConsumptionFailureRate),
		zap.Float64("payment_failure_rate", cfg.PaymentFailureRate),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "credit-ledger")
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
	gatewayCB := resilience.NewCircuitBreaker("payment-gateway")
	storeCB := resilience.NewCircuitBreaker("supabase")

	// --- Ledger store ---
	var ledgerStore port.LedgerStore
	var fileStore *store.FileStore
	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as ledger backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		httpClient := &http.Client{Timeout: 10 * time.Second}
		ledgerStore = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			storeCB,
			resilienceCfg,
			logger,
		)
	} else {
		logger.Info("using file/in-memory ledger backend",
			zap.String("data_file", cfg.DataFile),
		)
		fileStore, err = store.NewFileStore(cfg.DataFile, cfg.FlushOnWrite, logger)
		if err != nil {
			logger.Fatal("failed to open ledger store", zap.Error(err))
		}
		ledgerStore = fileStore
	}

	// --- Payment gateway simulator ---
	paymentGateway := gateway.NewSimulator(gateway.Config{
		MinLatency:             cfg.GatewayMinLatency,
		MaxLatency:             cfg.GatewayMaxLatency,
		Timeout:                cfg.GatewayTimeout,
		ConsumptionFailureRate: cfg.ConsumptionFailureRate,
		PaymentFailureRate:     cfg.PaymentFailureRate,
		Seed:                   cfg.GatewaySeed,
	}, logger)

	// --- Idempotency KV ---
	var kv port.KV
	if cfg.RedisAddr != "" {
		redisKV, err := cache.NewRedis(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisKV.Close()
		kv = redisKV
		logger.Info("idempotency store: redis", zap.String("addr", cfg.RedisAddr))
	} else {
		kv = cache.NewMemoryKV(cfg.IdempotencyTTL)
		logger.Info("idempotency store: in-memory")
	}

	// --- Services ---
	ledgerSvc := service.NewLedgerService(ledgerStore, metrics, logger)
	authorizerSvc := service.NewAuthorizerService(ledgerSvc, paymentGateway, gatewayCB, metrics, logger)
	subscriptionSvc := service.NewSubscriptionService(ledgerSvc, paymentGateway, gatewayCB, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(ledgerSvc, authorizerSvc, subscriptionSvc, kv, metrics, handler.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		DevTools:       cfg.DevTools,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, logger)

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
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	if fileStore != nil {
		if err := fileStore.Flush(); err != nil {
			logger.Error("failed to flush ledger snapshot", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}
