package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	attendanceerrors "tn-work/internal/attendance/errors"
	"tn-work/internal/events"
	"tn-work/internal/messaging/kafka"
	"tn-work/internal/shared/clock"
	"tn-work/internal/shared/contextutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	StatusIn  = "IN"
	StatusOut = "OUT"

	ActionClockIn  = "clock_in"
	ActionClockOut = "clock_out"

	maxRangeDays = 92
	monthLayout  = "2006-01"
)

// ChangeNotifier is told after every committed open or close.
type ChangeNotifier interface {
	SessionChanged(ctx context.Context)
}

type Service interface {
	ClockIn(ctx context.Context, userID string) (SessionResponse, error)
	ClockOut(ctx context.Context, userID, source string) (ClockOutResponse, error)
	Clock(ctx context.Context, userID string, req ClockRequest) (ClockResponse, error)
	Status(ctx context.Context, userID string) (StatusResponse, error)
	History(ctx context.Context, userID string) ([]SessionResponse, error)
	TodayHours(ctx context.Context, userID string) (HoursResponse, error)
	WeeklyReport(ctx context.Context, userID, date string) (ReportResponse, error)
	MonthlyReport(ctx context.Context, userID, month string) (ReportResponse, error)
	RangeReport(ctx context.Context, userID, from, to string) (ReportResponse, error)
	CloseStale(ctx context.Context, maxAge time.Duration) (int, error)
}

type service struct {
	db       *sql.DB
	repo     Repository
	outbox   kafka.OutboxRepository
	notifier ChangeNotifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewService(db *sql.DB, repo Repository, clk clock.Clock, logger ...*zap.Logger) Service {
	return NewServiceWithOutbox(db, repo, nil, nil, clk, logger...)
}

func NewServiceWithOutbox(
	db *sql.DB,
	repo Repository,
	outboxRepo kafka.OutboxRepository,
	notifier ChangeNotifier,
	clk clock.Clock,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("attendance.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("attendance.service")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &service{
		db:       db,
		repo:     repo,
		outbox:   outboxRepo,
		notifier: notifier,
		clock:    clk,
		logger:   l,
	}
}

func (s *service) now() time.Time {
	return s.clock.Now().Truncate(time.Millisecond)
}

func (s *service) ClockIn(ctx context.Context, userID string) (SessionResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	uid, err := uuid.Parse(userID)
	if err != nil {
		return SessionResponse{}, attendanceerrors.ErrInvalidUserID
	}
	s.logger.Debug("clock in requested", zap.String("request_id", rid), zap.String("user_id", userID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("clock in begin tx failed", zap.String("request_id", rid), zap.Error(err))
		return SessionResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	open, err := qtx.FindOpen(ctx, userID)
	if err != nil {
		s.logger.Error("clock in find open session failed", zap.String("user_id", userID), zap.Error(err))
		return SessionResponse{}, mapRepositoryError(err)
	}
	if open != nil {
		s.logger.Warn("clock in rejected, session already open",
			zap.String("user_id", userID),
			zap.String("session_id", open.ID.String()),
		)
		return SessionResponse{}, attendanceerrors.ErrAlreadyClockedIn
	}

	now := s.now()
	session := &Session{
		ID:      uuid.New(),
		UserID:  uid,
		CheckIn: now,
	}
	if err := qtx.Create(ctx, session); err != nil {
		mapped := mapRepositoryError(err)
		if errors.Is(mapped, attendanceerrors.ErrAlreadyClockedIn) {
			s.logger.Warn("clock in lost race to concurrent check-in", zap.String("user_id", userID))
		} else {
			s.logger.Error("clock in persist failed", zap.String("user_id", userID), zap.Error(err))
		}
		return SessionResponse{}, mapped
	}

	if err := s.enqueueEvent(ctx, tx, events.AttendanceSessionOpened, *session, now); err != nil {
		return SessionResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("clock in commit failed", zap.String("request_id", rid), zap.Error(err))
		return SessionResponse{}, err
	}
	s.notifyChanged(ctx)

	s.logger.Info("clock in success",
		zap.String("request_id", rid),
		zap.String("user_id", userID),
		zap.String("session_id", session.ID.String()),
	)
	return mapToResponse(*session, now), nil
}

func (s *service) ClockOut(ctx context.Context, userID, source string) (ClockOutResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	if _, err := uuid.Parse(userID); err != nil {
		return ClockOutResponse{}, attendanceerrors.ErrInvalidUserID
	}
	source = normalizeCloseSource(source)
	s.logger.Debug("clock out requested",
		zap.String("request_id", rid),
		zap.String("user_id", userID),
		zap.String("source", source),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("clock out begin tx failed", zap.String("request_id", rid), zap.Error(err))
		return ClockOutResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	open, err := qtx.FindOpenLatest(ctx, userID)
	if err != nil {
		s.logger.Error("clock out find open session failed", zap.String("user_id", userID), zap.Error(err))
		return ClockOutResponse{}, mapRepositoryError(err)
	}
	if open == nil {
		s.logger.Info("clock out no-op, already out", zap.String("user_id", userID), zap.String("source", source))
		return ClockOutResponse{AlreadyOut: true}, nil
	}

	now := s.now()
	closed, err := qtx.Close(ctx, open.ID, now, source)
	if err != nil {
		s.logger.Error("clock out persist failed", zap.String("session_id", open.ID.String()), zap.Error(err))
		return ClockOutResponse{}, mapRepositoryError(err)
	}
	if !closed {
		// another request closed it between the read and the update
		s.logger.Info("clock out no-op, session closed concurrently", zap.String("session_id", open.ID.String()))
		return ClockOutResponse{AlreadyOut: true}, nil
	}
	open.CheckOut = &now
	open.CloseSource = source

	if err := s.enqueueEvent(ctx, tx, events.AttendanceSessionClosed, *open, now); err != nil {
		return ClockOutResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("clock out commit failed", zap.String("request_id", rid), zap.Error(err))
		return ClockOutResponse{}, err
	}
	s.notifyChanged(ctx)

	s.logger.Info("clock out success",
		zap.String("request_id", rid),
		zap.String("user_id", userID),
		zap.String("session_id", open.ID.String()),
		zap.String("source", source),
	)
	resp := mapToResponse(*open, now)
	return ClockOutResponse{Session: &resp}, nil
}

func (s *service) Clock(ctx context.Context, userID string, req ClockRequest) (ClockResponse, error) {
	if IsClockInType(req.Type) {
		resp, err := s.ClockIn(ctx, userID)
		if err != nil {
			return ClockResponse{}, err
		}
		return ClockResponse{Action: ActionClockIn, Session: &resp}, nil
	}

	out, err := s.ClockOut(ctx, userID, req.Source)
	if err != nil {
		return ClockResponse{}, err
	}
	return ClockResponse{Action: ActionClockOut, AlreadyOut: out.AlreadyOut, Session: out.Session}, nil
}

// IsClockInType reports whether the combined endpoint should check in.
// Empty and unknown types mean check-out.
func IsClockInType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "in", "clock_in", "clock-in", "check_in", "check-in", "checkin":
		return true
	default:
		return false
	}
}

func normalizeCloseSource(source string) string {
	switch strings.ToUpper(strings.TrimSpace(source)) {
	case CloseSourceIdleTimeout:
		return CloseSourceIdleTimeout
	case CloseSourceBeacon:
		return CloseSourceBeacon
	case CloseSourceSweeper:
		return CloseSourceSweeper
	default:
		return CloseSourceManual
	}
}

func (s *service) Status(ctx context.Context, userID string) (StatusResponse, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return StatusResponse{}, attendanceerrors.ErrInvalidUserID
	}

	open, err := s.repo.FindOpenLatest(ctx, userID)
	if err != nil {
		s.logger.Error("status find open session failed", zap.String("user_id", userID), zap.Error(err))
		return StatusResponse{}, mapRepositoryError(err)
	}

	resp := StatusResponse{
		UserID: userID,
		Role:   contextutil.GetRole(ctx),
		Status: StatusOut,
	}
	if open != nil {
		session := mapToResponse(*open, s.now())
		resp.Status = StatusIn
		resp.Session = &session
	}
	return resp, nil
}

func (s *service) History(ctx context.Context, userID string) ([]SessionResponse, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, attendanceerrors.ErrInvalidUserID
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("history list failed", zap.String("user_id", userID), zap.Error(err))
		return nil, mapRepositoryError(err)
	}
	now := s.now()
	resp := make([]SessionResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, mapToResponse(row, now))
	}
	return resp, nil
}

func (s *service) enqueueEvent(ctx context.Context, tx *sql.Tx, eventType string, session Session, now time.Time) error {
	if s.outbox == nil {
		return nil
	}
	rid := contextutil.GetRequestID(ctx)

	event := events.AttendanceSessionEvent{
		EventType:   eventType,
		RequestID:   rid,
		SessionID:   session.ID.String(),
		UserID:      session.UserID.String(),
		CheckIn:     session.CheckIn,
		CheckOut:    session.CheckOut,
		CloseSource: session.CloseSource,
		OccurredAt:  now.UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal event failed", zap.String("request_id", rid), zap.Error(err))
		return err
	}

	if err := s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
		ID:            uuid.NewString(),
		RequestID:     rid,
		AggregateType: "attendance_session",
		AggregateID:   session.ID.String(),
		EventType:     eventType,
		Topic:         events.AttendanceSessionTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}); err != nil {
		s.logger.Error("attendance outbox persist failed",
			zap.String("session_id", session.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *service) notifyChanged(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.SessionChanged(ctx)
	}
}

func mapToResponse(row Session, now time.Time) SessionResponse {
	resp := SessionResponse{
		ID:            row.ID.String(),
		UserID:        row.UserID.String(),
		CheckIn:       row.CheckIn.In(clock.IST).Format(time.RFC3339),
		CloseSource:   row.CloseSource,
		Open:          row.IsOpen(),
		DurationHours: RoundHours(SessionDuration(row, now)),
	}
	if row.CheckOut != nil {
		v := row.CheckOut.In(clock.IST).Format(time.RFC3339)
		resp.CheckOut = &v
	}
	if row.Employee != nil {
		resp.EmployeeName = row.Employee.FullName
	}
	return resp
}
