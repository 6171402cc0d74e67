package attendance_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tn-work/internal/attendance"
	attendanceerrors "tn-work/internal/attendance/errors"
	attendanceMock "tn-work/internal/attendance/mock"
	"tn-work/internal/events"
	"tn-work/internal/messaging/kafka"
	kafkaMock "tn-work/internal/messaging/kafka/mock"
	"tn-work/internal/shared/clock"
	"tn-work/internal/shared/contextutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Wednesday 4 March 2026, 10:00 IST
var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, clock.IST)

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) SessionChanged(context.Context) { n.calls++ }

type serviceDeps struct {
	db       *sql.DB
	sqlMock  sqlmock.Sqlmock
	service  attendance.Service
	repo     *attendanceMock.MockRepository
	outbox   *kafkaMock.MockOutboxRepository
	notifier *countingNotifier
}

func setupServiceTest(t *testing.T) *serviceDeps {
	ctrl := gomock.NewController(t)

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := attendanceMock.NewMockRepository(ctrl)
	outboxRepo := kafkaMock.NewMockOutboxRepository(ctrl)
	notifier := &countingNotifier{}

	svc := attendance.NewServiceWithOutbox(db, repo, outboxRepo, notifier, clock.FixedClock{At: fixedNow})

	return &serviceDeps{
		db:       db,
		sqlMock:  sqlMock,
		service:  svc,
		repo:     repo,
		outbox:   outboxRepo,
		notifier: notifier,
	}
}

func expectTx(t *testing.T, mock sqlmock.Sqlmock, commit bool) {
	t.Helper()
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func openSession(userID string, checkIn time.Time) *attendance.Session {
	return &attendance.Session{ID: uuid.New(), UserID: uuid.MustParse(userID), CheckIn: checkIn}
}

func TestAttendanceService_ClockIn(t *testing.T) {
	ctx := contextutil.WithRequestID(context.Background(), "REQ-IN-1")

	t.Run("success - creates open session and queues event", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, true)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpen(ctx, userID).Return(nil, nil)
		deps.repo.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, s *attendance.Session) error {
				assert.Equal(t, userID, s.UserID.String())
				assert.True(t, s.CheckIn.Equal(fixedNow))
				assert.Nil(t, s.CheckOut)
				return nil
			})
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, e kafka.OutboxEvent) error {
				assert.Equal(t, events.AttendanceSessionTopic, e.Topic)
				assert.Equal(t, events.AttendanceSessionOpened, e.EventType)
				assert.Equal(t, "REQ-IN-1", e.RequestID)
				var payload events.AttendanceSessionEvent
				assert.NoError(t, json.Unmarshal(e.Payload, &payload))
				assert.Equal(t, userID, payload.UserID)
				return nil
			})

		resp, err := deps.service.ClockIn(ctx, userID)

		assert.NoError(t, err)
		assert.True(t, resp.Open)
		assert.Equal(t, "2026-03-04T10:00:00+05:30", resp.CheckIn)
		assert.Nil(t, resp.CheckOut)
		assert.Equal(t, 1, deps.notifier.calls)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("already in -> conflict and nothing created", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpen(ctx, userID).Return(openSession(userID, fixedNow.Add(-time.Hour)), nil)
		deps.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

		_, err := deps.service.ClockIn(ctx, userID)

		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedIn)
		assert.Equal(t, 0, deps.notifier.calls)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("concurrent check-in hits open index -> conflict", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpen(ctx, userID).Return(nil, nil)
		deps.repo.EXPECT().
			Create(ctx, gomock.Any()).
			Return(&pgconn.PgError{Code: "23505", ConstraintName: "uq_attendance_sessions_open"})

		_, err := deps.service.ClockIn(ctx, userID)

		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyClockedIn)
	})

	t.Run("invalid user id", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.ClockIn(ctx, "not-a-uuid")

		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidUserID)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("outbox failure -> rollback", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpen(ctx, userID).Return(nil, nil)
		deps.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("outbox down"))

		_, err := deps.service.ClockIn(ctx, userID)

		assert.EqualError(t, err, "outbox down")
		assert.Equal(t, 0, deps.notifier.calls)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})
}

func TestAttendanceService_ClockOut(t *testing.T) {
	ctx := context.Background()

	t.Run("success - closes latest open session", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		open := openSession(userID, fixedNow.Add(-90*time.Minute))

		expectTx(t, deps.sqlMock, true)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(open, nil)
		deps.repo.EXPECT().
			Close(ctx, open.ID, gomock.Any(), attendance.CloseSourceIdleTimeout).
			DoAndReturn(func(ctx context.Context, id uuid.UUID, at time.Time, source string) (bool, error) {
				assert.True(t, at.Equal(fixedNow))
				return true, nil
			})
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, e kafka.OutboxEvent) error {
				assert.Equal(t, events.AttendanceSessionClosed, e.EventType)
				assert.Equal(t, open.ID.String(), e.AggregateID)
				return nil
			})

		resp, err := deps.service.ClockOut(ctx, userID, "idle_timeout")

		assert.NoError(t, err)
		assert.False(t, resp.AlreadyOut)
		require.NotNil(t, resp.Session)
		assert.False(t, resp.Session.Open)
		assert.Equal(t, 1.5, resp.Session.DurationHours)
		assert.Equal(t, attendance.CloseSourceIdleTimeout, resp.Session.CloseSource)
		assert.Equal(t, 1, deps.notifier.calls)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("no open session -> already out, not an error", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(nil, nil)
		deps.repo.EXPECT().Close(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		resp, err := deps.service.ClockOut(ctx, userID, "")

		assert.NoError(t, err)
		assert.True(t, resp.AlreadyOut)
		assert.Nil(t, resp.Session)
		assert.Equal(t, 0, deps.notifier.calls)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("closed concurrently -> already out", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		open := openSession(userID, fixedNow.Add(-time.Hour))

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(open, nil)
		deps.repo.EXPECT().Close(ctx, open.ID, gomock.Any(), attendance.CloseSourceManual).Return(false, nil)

		resp, err := deps.service.ClockOut(ctx, userID, "")

		assert.NoError(t, err)
		assert.True(t, resp.AlreadyOut)
		assert.Equal(t, 0, deps.notifier.calls)
	})

	t.Run("store error is returned", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(nil, errors.New("db error"))

		_, err := deps.service.ClockOut(ctx, userID, "")

		assert.EqualError(t, err, "db error")
	})
}

func TestAttendanceService_Clock_DefaultsToClockOut(t *testing.T) {
	ctx := context.Background()

	for _, typ := range []string{"", "out", "garbage", "CLOCK_OUT"} {
		t.Run("type="+typ, func(t *testing.T) {
			deps := setupServiceTest(t)
			userID := uuid.New().String()

			expectTx(t, deps.sqlMock, false)
			deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
			deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(nil, nil)

			resp, err := deps.service.Clock(ctx, userID, attendance.ClockRequest{Type: typ, Source: "BEACON"})

			assert.NoError(t, err)
			assert.Equal(t, attendance.ActionClockOut, resp.Action)
			assert.True(t, resp.AlreadyOut)
		})
	}

	t.Run("type=in checks in", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()

		expectTx(t, deps.sqlMock, true)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().FindOpen(ctx, userID).Return(nil, nil)
		deps.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		resp, err := deps.service.Clock(ctx, userID, attendance.ClockRequest{Type: " In "})

		assert.NoError(t, err)
		assert.Equal(t, attendance.ActionClockIn, resp.Action)
		require.NotNil(t, resp.Session)
		assert.True(t, resp.Session.Open)
	})
}

func TestAttendanceService_Status(t *testing.T) {
	ctx := contextutil.WithRole(context.Background(), "HR")

	t.Run("in", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(openSession(userID, fixedNow.Add(-15*time.Minute)), nil)

		resp, err := deps.service.Status(ctx, userID)

		assert.NoError(t, err)
		assert.Equal(t, attendance.StatusIn, resp.Status)
		assert.Equal(t, "HR", resp.Role)
		require.NotNil(t, resp.Session)
		assert.Equal(t, 0.25, resp.Session.DurationHours)
	})

	t.Run("out", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		deps.repo.EXPECT().FindOpenLatest(ctx, userID).Return(nil, nil)

		resp, err := deps.service.Status(ctx, userID)

		assert.NoError(t, err)
		assert.Equal(t, attendance.StatusOut, resp.Status)
		assert.Nil(t, resp.Session)
	})
}

func TestAttendanceService_TodayHours_ClampsOpenSession(t *testing.T) {
	deps := setupServiceTest(t)
	ctx := context.Background()
	userID := uuid.New().String()
	checkIn := fixedNow.Add(-(2*time.Hour + 15*time.Minute))

	deps.repo.EXPECT().
		ListIntersecting(ctx, userID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, uid string, w clock.Window) ([]attendance.Session, error) {
			assert.Equal(t, "2026-03-04", w.Label)
			return []attendance.Session{*openSession(userID, checkIn)}, nil
		})

	resp, err := deps.service.TodayHours(ctx, userID)

	assert.NoError(t, err)
	assert.Equal(t, "2026-03-04", resp.Date)
	assert.Equal(t, 2.25, resp.Hours)
}

func TestAttendanceService_WeeklyReport(t *testing.T) {
	ctx := context.Background()

	t.Run("seven monday-first buckets with zero days", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		monday := time.Date(2026, 3, 2, 9, 0, 0, 0, clock.IST)
		out := monday.Add(8*time.Hour + 30*time.Minute)
		session := attendance.Session{ID: uuid.New(), UserID: uuid.MustParse(userID), CheckIn: monday, CheckOut: &out}

		deps.repo.EXPECT().ListIntersecting(ctx, userID, gomock.Any()).Return([]attendance.Session{session}, nil)

		resp, err := deps.service.WeeklyReport(ctx, userID, "")

		assert.NoError(t, err)
		assert.Equal(t, "2026-W10", resp.Period)
		assert.Equal(t, "2026-03-02", resp.From)
		assert.Equal(t, "2026-03-08", resp.To)
		require.Len(t, resp.Buckets, 7)
		assert.Equal(t, "Mon", resp.Buckets[0].Label)
		assert.Equal(t, 8.5, resp.Buckets[0].Hours)
		assert.Equal(t, "Sun", resp.Buckets[6].Label)
		assert.Equal(t, 0.0, resp.Buckets[6].Hours)
		assert.Equal(t, 8.5, resp.TotalHours)
	})

	t.Run("invalid date rejected before the store", func(t *testing.T) {
		deps := setupServiceTest(t)
		deps.repo.EXPECT().ListIntersecting(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := deps.service.WeeklyReport(ctx, uuid.New().String(), "2026-02-31")

		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidDateFormat)
	})
}

func TestAttendanceService_MonthlyReport(t *testing.T) {
	ctx := context.Background()

	t.Run("one bucket per day of february", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		deps.repo.EXPECT().ListIntersecting(ctx, userID, gomock.Any()).Return(nil, nil)

		resp, err := deps.service.MonthlyReport(ctx, userID, "2026-02")

		assert.NoError(t, err)
		assert.Equal(t, "2026-02", resp.Period)
		assert.Len(t, resp.Buckets, 28)
		assert.Equal(t, "2026-02-01", resp.Buckets[0].Label)
		assert.Equal(t, 0.0, resp.TotalHours)
	})

	t.Run("invalid month", func(t *testing.T) {
		deps := setupServiceTest(t)

		_, err := deps.service.MonthlyReport(ctx, uuid.New().String(), "March")

		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidMonthFormat)
	})
}

func TestAttendanceService_RangeReport_Validation(t *testing.T) {
	deps := setupServiceTest(t)
	ctx := context.Background()
	userID := uuid.New().String()

	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{"bad from", "03/01/2026", "2026-03-02", attendanceerrors.ErrInvalidDateFormat},
		{"bad to", "2026-03-01", "", attendanceerrors.ErrInvalidDateFormat},
		{"reversed", "2026-03-05", "2026-03-01", attendanceerrors.ErrInvalidDateRange},
		{"too large", "2026-01-01", "2026-06-01", attendanceerrors.ErrDateRangeTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deps.service.RangeReport(ctx, userID, tt.from, tt.to)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("valid range", func(t *testing.T) {
		deps.repo.EXPECT().ListIntersecting(ctx, userID, gomock.Any()).Return(nil, nil)

		resp, err := deps.service.RangeReport(ctx, userID, "2026-03-01", "2026-03-03")

		assert.NoError(t, err)
		assert.Len(t, resp.Buckets, 3)
		assert.Equal(t, "2026-03-03", resp.To)
	})
}

func TestAttendanceService_CloseStale(t *testing.T) {
	ctx := context.Background()

	t.Run("closes every stale session with sweeper source", func(t *testing.T) {
		deps := setupServiceTest(t)
		userID := uuid.New().String()
		stale := []attendance.Session{
			*openSession(userID, fixedNow.Add(-20*time.Hour)),
			*openSession(uuid.New().String(), fixedNow.Add(-18*time.Hour)),
		}

		deps.repo.EXPECT().
			ListOpenBefore(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, cutoff time.Time) ([]attendance.Session, error) {
				assert.True(t, cutoff.Equal(fixedNow.Add(-16*time.Hour)))
				return stale, nil
			})

		// first one closes, second was closed by its owner meanwhile
		expectTx(t, deps.sqlMock, true)
		expectTx(t, deps.sqlMock, false)
		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo).Times(2)
		deps.repo.EXPECT().Close(ctx, stale[0].ID, gomock.Any(), attendance.CloseSourceSweeper).Return(true, nil)
		deps.repo.EXPECT().Close(ctx, stale[1].ID, gomock.Any(), attendance.CloseSourceSweeper).Return(false, nil)
		deps.outbox.EXPECT().WithTx(gomock.Any()).Return(deps.outbox)
		deps.outbox.EXPECT().Create(ctx, gomock.Any()).Return(nil)

		closed, err := deps.service.CloseStale(ctx, 16*time.Hour)

		assert.NoError(t, err)
		assert.Equal(t, 1, closed)
		assert.Equal(t, 1, deps.notifier.calls)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("disabled when max age is zero", func(t *testing.T) {
		deps := setupServiceTest(t)

		closed, err := deps.service.CloseStale(ctx, 0)

		assert.NoError(t, err)
		assert.Equal(t, 0, closed)
	})
}

func TestIsClockInType(t *testing.T) {
	for _, in := range []string{"in", "IN", "clock_in", "check-in", "checkin"} {
		assert.True(t, attendance.IsClockInType(in), in)
	}
	for _, out := range []string{"", "out", "clock_out", "inn", "{}"} {
		assert.False(t, attendance.IsClockInType(out), out)
	}
}
