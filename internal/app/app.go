package app

import (
	"context"
	"database/sql"
	"fmt"

	"tn-work/internal/attendance"
	"tn-work/internal/config"
	"tn-work/internal/messaging/kafka"
	"tn-work/internal/shared/connection"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectRetries = 5

// store is the database side shared by the api and the worker.
type store struct {
	db     *sql.DB
	repo   attendance.Repository
	outbox kafka.OutboxRepository
}

func (s *store) Close() error {
	return s.db.Close()
}

// openStore connects the configured driver and prepares its schema. The
// outbox only exists on postgres backends.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	dsn := cfg.DB.DSN()

	switch cfg.DB.Driver {
	case config.DriverPostgres:
		gormDB, err := connection.ConnectGORMWithRetry(dsn, connectRetries, logger)
		if err != nil {
			return nil, err
		}
		if err := attendance.AutoMigrate(gormDB); err != nil {
			return nil, fmt.Errorf("migrate attendance: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		if err := kafka.EnsureOutboxSchema(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("migrate outbox: %w", err)
		}
		return &store{
			db:     sqlDB,
			repo:   attendance.NewRepository(gormDB),
			outbox: kafka.NewOutboxRepository(sqlDB),
		}, nil

	case config.DriverPQ:
		sqlDB, err := connection.ConnectSQLWithRetry("postgres", dsn, connectRetries, logger)
		if err != nil {
			return nil, err
		}
		repo, err := attendance.NewSQLRepository(ctx, sqlDB, config.DriverPQ)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		if err := kafka.EnsureOutboxSchema(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate outbox: %w", err)
		}
		return &store{db: sqlDB, repo: repo, outbox: kafka.NewOutboxRepository(sqlDB)}, nil

	case config.DriverSQLite:
		sqlDB, err := connection.ConnectSQLWithRetry("sqlite", dsn, connectRetries, logger)
		if err != nil {
			return nil, err
		}
		repo, err := attendance.NewSQLRepository(ctx, sqlDB, config.DriverSQLite)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		return &store{db: sqlDB, repo: repo}, nil
	}

	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
}

// openRedis is optional: without REDIS_ADDR the live feed runs uncached and
// change fan-out stays in process.
func openRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, live feed cache disabled")
		return nil, nil
	}
	return connection.ConnectRedisWithRetry(cfg.RedisAddr, connectRetries, logger)
}
