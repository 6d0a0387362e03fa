// Package bootstrap builds the dependencies shared by the loyalty binaries:
// configuration, logging, telemetry, the ledger database and the account cache.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/cache"
	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/migration"
	"github.com/loyalty/backend/internal/infrastructure/persistence"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/loyalty/backend/migrations"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Runtime holds the long-lived dependencies of a process
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Telemetry
	DB        *persistence.Database
	Cache     cache.AccountCache
	Metrics   *telemetry.LoyaltyMetrics
	Accounts  *loyaltyapp.AccountService

	poolMetrics metric.Registration
}

// Start loads configuration and connects every dependency. component names the
// binary in logs. On error everything started so far is closed again.
func Start(ctx context.Context, component string) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: timeFormat,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &Runtime{Config: cfg, Logger: bootLog}

	rt.Telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, cfg.Profiling, bootLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// rebuild the logger so entries also reach the OTLP log exporter
	log, err := logger.New(logCfg, rt.Telemetry.LogCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		rt.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Sync(bootLog)
	rt.Logger = log.With(zap.String("component", component))

	rt.Logger.Info("Starting loyalty service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("tracing", rt.Telemetry.Tracer.IsEnabled()),
		zap.Bool("metrics", rt.Telemetry.Meter.IsEnabled()),
	)

	if cfg.Database.AutoMigrate {
		// golang-migrate holds an advisory lock, so server and consumer may both do this
		if err := migration.Apply(cfg.Database.DSN(), migrations.FS, rt.Logger); err != nil {
			rt.Close(context.Background())
			return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
		}
	}

	if err := rt.connectDatabase(); err != nil {
		rt.Close(context.Background())
		return nil, err
	}

	rt.Cache, err = cache.NewAccountCacheFactory(cfg.Redis,
		cache.WithLogger(rt.Logger),
		cache.WithTTL(cfg.Loyalty.CacheTTL),
	).CreateCache(ctx)
	if err != nil {
		rt.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize account cache: %w", err)
	}

	rt.Metrics, err = telemetry.NewLoyaltyMetrics(rt.Telemetry.Meter.Meter("loyalty"))
	if err != nil {
		rt.Close(context.Background())
		return nil, fmt.Errorf("failed to register loyalty metrics: %w", err)
	}

	rt.Accounts = loyaltyapp.NewAccountService(
		persistence.NewGormLedgerRepository(rt.DB.DB),
		rt.Cache,
		rt.Logger,
	)
	return rt, nil
}

func (rt *Runtime) connectDatabase() error {
	cfg := rt.Config
	gormLog := logger.NewGormLogger(rt.Logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.Connect(&cfg.Database, gormLog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	rt.DB = db

	tracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, rt.Logger)
	if err := tracing.Register(db.DB); err != nil {
		return fmt.Errorf("failed to register database tracing: %w", err)
	}

	if rt.Telemetry.Meter.IsEnabled() {
		sqlDB, err := db.DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		rt.poolMetrics, err = telemetry.RegisterDBPoolMetrics(rt.Telemetry.Meter.Meter("loyalty.db"), sqlDB)
		if err != nil {
			return fmt.Errorf("failed to register pool metrics: %w", err)
		}
	}

	rt.Logger.Info("Database connected successfully")
	return nil
}

// Close releases the cache, the database and flushes telemetry. Telemetry is
// flushed last and bounded by the configured telemetry shutdown timeout.
func (rt *Runtime) Close(ctx context.Context) {
	var errs []error
	if rt.Cache != nil {
		errs = append(errs, rt.Cache.Close())
	}
	if rt.poolMetrics != nil {
		errs = append(errs, rt.poolMetrics.Unregister())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		rt.Logger.Error("Error releasing resources", zap.Error(err))
	}

	if rt.Telemetry != nil {
		if err := rt.Telemetry.Shutdown(ctx); err != nil {
			rt.Logger.Warn("Telemetry did not flush cleanly", zap.Error(err))
		}
	}
	logger.Sync(rt.Logger)
}
