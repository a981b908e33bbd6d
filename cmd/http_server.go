package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/catalog"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/core/events"
	escrowPkg "github.com/tnyamukapa/rentpay/internal/escrow"
	escrowPostgres "github.com/tnyamukapa/rentpay/internal/escrow/postgres"
	"github.com/tnyamukapa/rentpay/internal/fees"
	"github.com/tnyamukapa/rentpay/internal/idempotency"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
	paymentPostgres "github.com/tnyamukapa/rentpay/internal/payment/postgres"
	"github.com/tnyamukapa/rentpay/internal/provider"
	refundPkg "github.com/tnyamukapa/rentpay/internal/refund"
	refundPostgres "github.com/tnyamukapa/rentpay/internal/refund/postgres"
	"github.com/tnyamukapa/rentpay/internal/transport"
	"github.com/tnyamukapa/rentpay/internal/transport/rest"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config      *internal.Config
	DB          *sqlx.DB
	GormDB      *gorm.DB
	Redis       *redis.Client
	Router      *chi.Mux
	EventBus    *events.EventBus
	CardAdapter *provider.CardAdapter
	Logger      *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}

		deps.CardAdapter.Shutdown()

		if err := deps.EventBus.Drain(ctx); err != nil {
			deps.Logger.Warn("event bus drained with handlers still pending", "error", err)
		}

		if deps.Redis != nil {
			if err := deps.Redis.Close(); err != nil {
				deps.Logger.Error("redis close error", "error", err)
			}
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.App.Environment, "service", cfg.App.Name)
	lg := logger.LoggerWrapper()

	db, gormDB, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var (
		redisClient *redis.Client
		idemStore   idempotency.Store
		lockStore   idempotency.LockStore
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		idemStore = idempotency.NewRedisStore(redisClient)
		lockStore = idempotency.NewRedisLockStore(redisClient)
	} else {
		// The database store keeps replay protection durable; booking
		// locks fall back to per-process, with the partial unique index on
		// payment_transactions as the cross-process guard.
		lg.Warn("redis disabled; using database idempotency store and per-process booking locks")
		idemStore = idempotency.NewPostgresStore(gormDB)
		lockStore = idempotency.NewMemoryLockStore()
	}

	cat, err := catalog.NewCatalog(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment method catalog: %w", err)
	}

	policy, err := fees.PolicyFromConfig(cfg.Fees)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fee policy: %w", err)
	}
	feeCalc := fees.NewCalculator(policy)

	validator := paymentPkg.NewValidator()
	orchestrator := paymentPkg.NewOrchestrator(cat, validator)
	resumeTokens := paymentPkg.NewResumeTokenIssuer(cfg.Payment.ResumeTokenSecret, cfg.Payment.ResumeTokenTTL)

	registry := provider.NewRegistry()
	cardAdapter := provider.NewCardAdapter(provider.CardAdapterConfig{
		BaseURL:        cfg.Payment.CardGatewayURL,
		APIKey:         cfg.Payment.APIKey,
		RequestTimeout: cfg.Payment.RequestTimeout,
		DedupeWindow:   cfg.Payment.DedupeWindow,
		MaxWorkers:     cfg.Payment.WorkerPoolSize,
		JobQueueSize:   cfg.Payment.JobQueueSize,
	}, lg)
	registry.Register(payment.MethodTypeCard, cardAdapter)
	registry.Register(payment.MethodTypeMobileMoney, provider.NewMobileMoneyAdapter(provider.MobileMoneyAdapterConfig{
		BaseURL:        cfg.Payment.MobileGatewayURL,
		APIKey:         cfg.Payment.APIKey,
		RequestTimeout: cfg.Payment.RequestTimeout,
		DedupeWindow:   cfg.Payment.DedupeWindow,
	}, lg))
	registry.Register(payment.MethodTypeBankTransfer, provider.NewBankAdapter(provider.BankAdapterConfig{
		BaseURL:        cfg.Payment.BankGatewayURL,
		APIKey:         cfg.Payment.APIKey,
		RequestTimeout: cfg.Payment.RequestTimeout,
		DedupeWindow:   cfg.Payment.DedupeWindow,
	}, lg))
	registry.Register(payment.MethodTypeDigitalWallet, provider.NewWalletAdapter(provider.WalletAdapterConfig{
		BaseURL:        cfg.Payment.WalletGatewayURL,
		APIKey:         cfg.Payment.APIKey,
		RequestTimeout: cfg.Payment.RequestTimeout,
		DedupeWindow:   cfg.Payment.DedupeWindow,
	}, lg))

	eventBus := events.NewEventBus(lg)
	paymentPkg.NewEventHandler(lg).RegisterEventHandlers(eventBus)
	escrowPkg.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	escrowRepo := escrowPostgres.NewEscrowRepository(gormDB)
	escrowService := escrowPkg.NewService(escrowRepo, eventBus, cfg.Escrow, lg)

	paymentRepo := paymentPostgres.NewPaymentRepository(gormDB)
	paymentService := paymentPkg.NewService(
		paymentRepo,
		orchestrator,
		feeCalc,
		registry,
		idemStore,
		lockStore,
		escrowService,
		resumeTokens,
		eventBus,
		cfg.Payment,
		lg,
	)

	refundRepo := refundPostgres.NewRefundRepository(gormDB)
	refundService := refundPkg.NewService(refundRepo, paymentRepo, cat, registry, escrowService, eventBus, lg)

	baseHandler := transport.NewBaseHandler(lg)
	credentialStore := paymentPostgres.NewWebhookCredentialRepository(gormDB)

	catalogHandler := catalog.NewHandler(cat)
	feesHandler := fees.NewHandler(feeCalc, cat)
	paymentHandler := paymentPkg.NewHandler(paymentService, lg)
	webhookHandler := paymentPkg.NewWebhookHandler(baseHandler, paymentService, credentialStore, lg)
	escrowHandler := escrowPkg.NewHandler(escrowService, lg)
	refundHandler := refundPkg.NewHandler(refundService, lg)

	router := chi.NewRouter()
	if err := rest.RegisterAllRoutes(
		router,
		db.DB,
		redisClient,
		"./api/openapi.yml",
		cfg.Server.AllowedOrigins,
		catalogHandler,
		feesHandler,
		paymentHandler,
		webhookHandler,
		escrowHandler,
		refundHandler,
		lg,
	); err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	return &Dependencies{
		Config:      cfg,
		DB:          db,
		GormDB:      gormDB,
		Redis:       redisClient,
		Router:      router,
		EventBus:    eventBus,
		CardAdapter: cardAdapter,
		Logger:      lg,
	}, nil
}

// initDB opens one pgx connection pool and hands it to both sqlx and
// gorm, so health checks and repositories share the same pool limits.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: dbConn.DB}), &gorm.Config{})
	if err != nil {
		_ = dbConn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	return dbConn, gormDB, nil
}
