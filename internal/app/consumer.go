package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"tn-work/internal/config"
	"tn-work/internal/events"
	"tn-work/internal/livestatus"
	"tn-work/internal/messaging/kafka/consumer"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RunConsumer projects attendance session events onto the live feed so
// writers that do not share the api's redis still refresh it.
func RunConsumer(cfg *config.Config) error {
	logger := zap.L().Named("app.consumer")

	if cfg.KafkaBroker == "" {
		return fmt.Errorf("KAFKA_BROKER is required")
	}
	if cfg.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	rdb, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        []string{cfg.KafkaBroker},
		Topic:          events.AttendanceSessionTopic,
		GroupID:        "tn-work-live-feed",
		CommitInterval: 0,
		StartOffset:    kafkago.LastOffset,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	invalidator := livestatus.NewInvalidator(rdb, nil)
	consumer.ConsumeAttendanceSessions(ctx, reader, invalidator, logger)

	logger.Info("consumer shutting down")
	return nil
}
