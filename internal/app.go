// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"thellex-wallet/internal/adapter"
	router "thellex-wallet/internal/api"
	"thellex-wallet/internal/api/handler"
	apimw "thellex-wallet/internal/api/middleware"
	"thellex-wallet/internal/audit"
	"thellex-wallet/internal/config"
	"thellex-wallet/internal/guard"
	"thellex-wallet/internal/metrics"
	"thellex-wallet/internal/notify"
	"thellex-wallet/internal/provider"
	"thellex-wallet/internal/reconciler"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/repository/postgres"
	"thellex-wallet/internal/scheduler"
	"thellex-wallet/internal/syncer"
	"thellex-wallet/internal/util"
	"thellex-wallet/pkg/clock"
	"thellex-wallet/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB

	// Repositories
	UserRepository        repository.UserRepository
	WalletRepository      repository.WalletRepository
	TransactionRepository repository.TransactionRepository

	// Reconciliation engine
	Providers  provider.Registry
	Guard      *guard.IdempotencyGuard
	Reconciler *reconciler.Reconciler
	Scheduler  *scheduler.SettlementScheduler

	// Outbound channels
	Notifier *notify.KafkaNotifier
	Trail    *audit.KafkaTrail

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication(providers provider.Registry) *Application {
	return &Application{Providers: providers}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	util.InitLogger()
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	database, err := db.NewPostgresDB(app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	app.UserRepository = postgres.NewUserRepository(app.DB)
	app.WalletRepository = postgres.NewWalletRepository(app.DB)
	app.TransactionRepository = postgres.NewTransactionRepository(app.DB)
	app.Logger.Info("Repositories initialized.")

	m := metrics.New()
	clk := clock.RealClock{}

	// An injected registry (tests) wins; otherwise build clients for every
	// provider with an API base URL configured.
	if app.Providers == nil {
		app.Providers = provider.Registry{}
	}
	if len(app.Providers) == 0 {
		if cfg.CircleAPIURL != "" {
			app.Providers[provider.IDCircle] = provider.NewCircleClient(cfg.CircleAPIURL, cfg.CircleAPIKey)
		}
		if cfg.QuidaxAPIURL != "" {
			app.Providers[provider.IDQuidax] = provider.NewQuidaxClient(cfg.QuidaxAPIURL, cfg.QuidaxAPIKey)
		}
		app.Logger.Info("Provider clients initialized.", "count", len(app.Providers))
	}

	app.Notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.NotificationTopic, app.Logger)
	app.Trail = audit.NewKafkaTrail(cfg.KafkaBrokers, cfg.AuditTopic, app.Logger)

	app.Guard = guard.NewIdempotencyGuard(app.TransactionRepository, app.DB, clk, app.Logger)

	balanceSyncer := syncer.NewBalanceSyncer(app.Providers, app.WalletRepository, app.DB, m, app.Logger)
	limits := reconciler.NewLimitChecker(cfg.TierPolicy, app.TransactionRepository, clk)

	app.Reconciler = reconciler.NewReconciler(
		app.DB, // DBTxBeginner
		app.DB, // DBExecutor
		app.UserRepository,
		app.WalletRepository,
		app.TransactionRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		limits,
		balanceSyncer,
		app.Notifier,
		app.Trail,
		m,
		app.Logger,
		cfg.FiatAssets,
	)
	app.Logger.Info("Reconciliation engine initialized.")

	schedCfg := scheduler.DefaultConfig()
	schedCfg.DirectInterval = cfg.DirectInterval
	schedCfg.DelayedInterval = cfg.DelayedInterval
	schedCfg.DelayedMinAge = cfg.DelayedMinAge
	app.Scheduler = scheduler.NewSettlementScheduler(
		schedCfg,
		app.Reconciler,
		app.TransactionRepository,
		app.UserRepository,
		app.WalletRepository,
		app.DB,
		app.Providers,
		cfg.TierPolicy,
		clk,
		m,
		app.Logger,
	)
	app.Logger.Info("Settlement scheduler initialized.")

	adapters := []adapter.Adapter{adapter.NewCircleAdapter(), adapter.NewQuidaxAdapter()}
	webhookHandler := handler.NewWebhookHandler(adapters, app.Guard, app.Reconciler, app.Trail, m, app.Logger)
	walletHandler := handler.NewWalletHandler(app.WalletRepository, app.TransactionRepository, app.DB, app.Logger)

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	limiter := apimw.NewRateLimiter(redisClient, cfg.WebhookRPS, cfg.WebhookBurst, app.Logger)

	app.HTTPHandler = router.NewRouter(webhookHandler, walletHandler, limiter, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.Notifier != nil {
		if err := app.Notifier.Close(); err != nil {
			app.Logger.Error("Failed to close notifier", "error", err)
		}
	}
	if app.Trail != nil {
		if err := app.Trail.Close(); err != nil {
			app.Logger.Error("Failed to close audit trail", "error", err)
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
