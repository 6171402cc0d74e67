package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"tn-work/internal/attendance"
	"tn-work/internal/config"
	"tn-work/internal/livestatus"
	"tn-work/internal/messaging/kafka/producer"
	"tn-work/internal/shared/clock"
	"tn-work/internal/shared/connection"

	"go.uber.org/zap"
)

// RunWorker publishes the outbox to kafka and, when enabled, closes stale
// sessions until SIGINT/SIGTERM.
func RunWorker(cfg *config.Config) error {
	logger := zap.L().Named("app.worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.outbox != nil {
		if cfg.KafkaBroker == "" {
			return fmt.Errorf("KAFKA_BROKER is required")
		}
		kafkaWriter, err := connection.ConnectKafkaWithRetry(cfg.KafkaBroker, connectRetries, logger)
		if err != nil {
			return err
		}
		defer kafkaWriter.Close()

		go producer.ProcessOutboxEvents(ctx, st.outbox, kafkaWriter, logger, cfg.OutboxPollInterval)
	} else {
		logger.Info("outbox not available for driver, publisher disabled", zap.String("driver", cfg.DB.Driver))
	}

	if cfg.StaleSweepEnabled() {
		rdb, err := openRedis(cfg, logger)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer rdb.Close()
		}
		// the worker hosts no hub; without redis the api refreshes on its own tick
		notifier := livestatus.NewInvalidator(rdb, nil)
		svc := attendance.NewServiceWithOutbox(st.db, st.repo, st.outbox, notifier, clock.RealClock{})
		go attendance.RunStaleSweeper(ctx, svc, cfg.StaleSessionMaxAge, cfg.StaleSweepInterval, logger)
	}

	<-ctx.Done()
	logger.Info("worker shutting down")
	return nil
}
