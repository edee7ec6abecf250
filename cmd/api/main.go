package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto-settlement/config"
	"crypto-settlement/internal/adapter/chain"
	httpHandler "crypto-settlement/internal/adapter/http/handler"
	pgStorage "crypto-settlement/internal/adapter/storage/postgres"
	redisStorage "crypto-settlement/internal/adapter/storage/redis"
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/internal/service"
	"crypto-settlement/internal/worker"
	"crypto-settlement/pkg/breaker"
	"crypto-settlement/pkg/logger"
	"crypto-settlement/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load(os.Getenv("CPS_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting crypto settlement service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database.DSN(), log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories and stores
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	depositRepo := pgStorage.NewDepositAddressRepo(pool)
	balanceRepo := pgStorage.NewBalanceRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	webhookLogRepo := pgStorage.NewWebhookLogRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	pollLease := redisStorage.NewPollLease(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Crypto and chain access
	vault, err := service.NewAESVaultFromString(cfg.Vault.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault")
	}
	prices, err := service.NewStaticPriceOracle(cfg.Prices)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price oracle")
	}

	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Cooldown:         cfg.Resilience.Cooldown,
		IsFailure:        chain.IsEndpointFailure,
	}, log, func(endpoint string, _, to breaker.State) {
		m.BreakerState(endpoint, string(to))
	})
	chains, err := chain.Build(ctx, cfg, breakers, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize chain clients")
	}
	log.Info().Interface("networks", chains.Networks()).Msg("Chain clients ready")

	// Services
	fees := service.NewFeeCalculator()
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	authSvc := service.NewAuthService(merchantRepo, service.NewArgon2HashService(), vault, tokenSvc, service.AuthDefaults{
		FeePercentage:   cfg.Fees.DefaultPercentage,
		CustomerPaysFee: cfg.Fees.CustomerPays,
	}, log)
	if cfg.Admin.Username != "" && cfg.Admin.Password != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap admin account")
		}
	}

	merchantSvc := service.NewMerchantService(merchantRepo, vault, fees, log)
	depositSvc := service.NewDepositService(depositRepo, service.NewChainKeyGenerator(), vault, log)
	ledgerSvc := service.NewLedgerService(balanceRepo, ledgerRepo, transactor, prices, m, log)
	paymentSvc := service.NewPaymentService(paymentRepo, merchantRepo, depositSvc, chains, idempotencyCache, prices, fees, service.PaymentOptions{
		DefaultExpiry: cfg.Monitor.PaymentExpiry,
		Confirmations: confirmationPolicy(cfg),
	}, log)
	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, ledgerSvc, transactor, prices, service.WithdrawalOptions{
		MinAmount:               cfg.Withdrawal.MinAmount,
		FeePercentage:           cfg.Withdrawal.FeePercentage,
		AutoApproveThresholdUSD: cfg.Withdrawal.AutoApproveThresholdUSD,
	}, m, log)

	notifier := service.NewWebhookNotifier(merchantRepo, webhookLogRepo, vault, sigSvc,
		&http.Client{Timeout: cfg.Webhook.Timeout}, nil, m, log)
	monitorSvc := service.NewMonitorService(paymentRepo, depositSvc, chains, ledgerSvc, transactor, fees, notifier, m, log)

	// Workers
	monitor := worker.NewPaymentMonitor(paymentRepo, monitorSvc, pollLease, worker.PaymentMonitorConfig{
		Interval:  cfg.Monitor.PollInterval,
		Workers:   cfg.Monitor.Workers,
		BatchSize: cfg.Monitor.BatchSize,
		LeaseTTL:  cfg.Monitor.LeaseTTL,
	}, m, log)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Start(ctx)
	}()

	processor := worker.NewWithdrawalProcessor(withdrawalRepo, withdrawalSvc, chains, vault, worker.WithdrawalProcessorConfig{
		Schedule:  cfg.Workers.WithdrawalSchedule,
		BatchSize: cfg.Payout.SubmitBatchSize,
		Wallets:   payoutWallets(cfg),
	}, log)
	if err := processor.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start withdrawal processor")
	}

	reconciler := worker.NewReconciler(balanceRepo, ledgerSvc, cfg.Workers.ReconcileSchedule, log)
	if err := reconciler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reconciler")
	}

	// HTTP
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		PaymentSvc:     paymentSvc,
		LedgerSvc:      ledgerSvc,
		WithdrawalSvc:  withdrawalSvc,
		MerchantSvc:    merchantSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	<-monitorDone
	processor.Stop()
	reconciler.Stop()
	notifier.Close()

	log.Info().Msg("Server exited")
}

// confirmationPolicy collects per-network confirmation overrides from config.
func confirmationPolicy(cfg *config.Config) domain.ConfirmationPolicy {
	policy := make(domain.ConfirmationPolicy, len(cfg.Chains))
	for name, cc := range cfg.Chains {
		if cc.Confirmations > 0 {
			policy[domain.Network(strings.ToUpper(name))] = cc.Confirmations
		}
	}
	return policy
}

func payoutWallets(cfg *config.Config) map[domain.ChainFamily]worker.PayoutWallet {
	wallets := make(map[domain.ChainFamily]worker.PayoutWallet, 2)
	if cfg.Payout.EVMAddress != "" && cfg.Payout.EVMKeyEnc != "" {
		wallets[domain.FamilyEVM] = worker.PayoutWallet{Address: cfg.Payout.EVMAddress, EncryptedKey: cfg.Payout.EVMKeyEnc}
	}
	if cfg.Payout.SolanaAddress != "" && cfg.Payout.SolanaKeyEnc != "" {
		wallets[domain.FamilySolana] = worker.PayoutWallet{Address: cfg.Payout.SolanaAddress, EncryptedKey: cfg.Payout.SolanaKeyEnc}
	}
	return wallets
}
