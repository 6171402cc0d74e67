package consumer

import (
	"context"
	"encoding/json"

	"tn-work/internal/events"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafkago.Reader the consumers use.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// SessionChangeNotifier is told once per decoded attendance session event.
type SessionChangeNotifier interface {
	SessionChanged(ctx context.Context)
}

func ConsumeAttendanceSessions(
	ctx context.Context,
	reader MessageReader,
	notifier SessionChangeNotifier,
	logger *zap.Logger,
) {
	log := logger.Named("kafka.consumer.attendance_session")
	log.Info("attendance session consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("attendance session consumer stopped")
				return
			}
			log.Error("fetch attendance session message failed", zap.Error(err))
			continue
		}

		var event events.AttendanceSessionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("decode attendance session event failed", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		if !isSessionEvent(event.EventType) {
			log.Warn("unknown attendance session event, skipping", zap.String("event_type", event.EventType))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		notifier.SessionChanged(ctx)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit attendance session message failed", zap.Error(err))
			continue
		}

		log.Debug("live feed refreshed from attendance event",
			zap.String("event_type", event.EventType),
			zap.String("session_id", event.SessionID),
			zap.String("user_id", event.UserID),
		)
	}
}

func isSessionEvent(eventType string) bool {
	return eventType == events.AttendanceSessionOpened || eventType == events.AttendanceSessionClosed
}
