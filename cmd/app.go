package cmd

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	goredislib "github.com/redis/go-redis/v9"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/payment"
	"github.com/frahmantamala/reservation-payments/internal/payment/dynamo"
	"github.com/frahmantamala/reservation-payments/internal/payment/postgres"
	"github.com/frahmantamala/reservation-payments/internal/paymentgateway"
	"github.com/frahmantamala/reservation-payments/internal/transport/rest"
	"github.com/frahmantamala/reservation-payments/pkg/logger"
)

// Dependencies is everything the commands share. Close releases the
// connections that were opened.
type Dependencies struct {
	Config  *internal.Config
	Logger  *slog.Logger
	Store   payment.Store
	Service *payment.Service
	Checks  map[string]rest.Check

	closers []func() error
}

func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Error("failed to close dependency", "error", err)
		}
	}
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		Logger: logger.LoggerWrapper(),
		Checks: map[string]rest.Check{},
	}

	store, err := initStore(ctx, deps)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize payment store: %w", err)
	}
	deps.Store = store

	locker, err := initLocker(ctx, deps)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize payment locker: %w", err)
	}

	deps.Service = payment.NewService(config.Payment, store, newGatewayFactory(deps.Logger), deps.Logger,
		payment.WithLocker(locker))

	return deps, nil
}

func newGatewayFactory(logger *slog.Logger) payment.GatewayFactory {
	return func(cfg internal.PaymentConfig) payment.Gateway {
		return paymentgateway.NewClient(paymentgateway.Config{
			BaseURL:    cfg.APIBaseURL,
			SecretKey:  cfg.SecretKey,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		}, logger.With("component", "paymentgateway"))
	}
}

func initStore(ctx context.Context, deps *Dependencies) (payment.Store, error) {
	cfg := deps.Config

	switch cfg.Storage.Driver {
	case internal.StorageDriverDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.Storage.DynamoRegion, cfg.Storage.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		deps.Logger.Info("payment store: dynamodb", "table", cfg.Storage.DynamoTable)
		return dynamo.NewPaymentRepository(client, cfg.Storage.DynamoTable), nil

	case internal.StorageDriverSQLite:
		gdb, err := gorm.Open(sqlite.Open(cfg.Storage.SQLitePath), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		deps.closers = append(deps.closers, sqlDB.Close)

		if err := postgres.AutoMigrate(gdb); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		deps.Checks["sqlite"] = rest.SQLCheck(sqlx.NewDb(sqlDB, "sqlite3"))
		deps.Logger.Info("payment store: sqlite", "path", cfg.Storage.SQLitePath)
		return postgres.NewPaymentRepository(gdb), nil

	default:
		db, err := initDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, db.Close)

		gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open gorm session: %w", err)
		}
		deps.Checks["postgres"] = rest.SQLCheck(db)
		deps.Logger.Info("payment store: postgres")
		return postgres.NewPaymentRepository(gdb), nil
	}
}

func initLocker(ctx context.Context, deps *Dependencies) (payment.Locker, error) {
	cfg := deps.Config.Redis
	if !cfg.Enabled {
		return payment.NewKeyedMutex(), nil
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	deps.closers = append(deps.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	deps.Checks["redis"] = rest.RedisCheck(client)
	deps.Logger.Info("payment locker: redis", "addr", cfg.Addr, "ttl", cfg.LockTTL.String())

	return payment.NewRedisLocker(client, cfg.LockTTL, deps.Logger), nil
}

// initDB opens the pgx pool shared by gorm and the health check.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
