package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/config"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/handler"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/cache"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/memory"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/observability"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/postgres"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/infra/resilience"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/port"
	"github.com/boddenberg/cadastro-clientes-pf-go/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "cadastro-clientes-pf"

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store", cfg.Store),
		zap.Bool("redis_cache", cfg.RedisAddr != ""),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("jwt_ttl", cfg.Auth.TokenTTL),
		zap.Int("bcrypt_cost", cfg.Auth.BcryptCost),
		zap.Int("max_concurrent_hashes", cfg.Auth.MaxConcurrentHashes),
	)
	if cfg.UsesDefaultJWTSecret() {
		logger.Warn("JWT_SECRET not set, signing tokens with the built-in development secret")
	}

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	var store port.CustomerStore
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		cb := resilience.NewCircuitBreaker("postgres", logger)
		store = postgres.NewCustomerStore(pool, cb, logger)
		logger.Info("postgres store ready", zap.Int("max_conns", cfg.DBMaxConns))
	}

	// --- Cache ---
	var customerCache port.Cache[domain.Customer]
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()

		customerCache = cache.NewRedis[domain.Customer](client, serviceName+":", cfg.CacheTTL, logger)
		logger.Info("redis cache ready", zap.String("addr", cfg.RedisAddr))
	} else {
		customerCache = cache.New[domain.Customer](cfg.CacheTTL)
	}

	// --- Services ---
	hasher := service.NewBcryptHasher(&cfg.Auth, resilience.NewBulkhead(cfg.Auth.MaxConcurrentHashes))
	issuer, err := service.NewJWTIssuer(&cfg.Auth)
	if err != nil {
		return err
	}
	customerSvc := service.NewCustomerService(store, hasher, customerCache, metrics, logger)
	authSvc := service.NewAuthService(store, hasher, issuer, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(customerSvc, authSvc, store, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
