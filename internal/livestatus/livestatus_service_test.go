package livestatus_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"tn-work/internal/attendance"
	attendanceerrors "tn-work/internal/attendance/errors"
	attendanceMock "tn-work/internal/attendance/mock"
	"tn-work/internal/livestatus"
	"tn-work/internal/shared/clock"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	_ "modernc.org/sqlite"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, clock.IST)
}

func newStore(t *testing.T) (*sql.DB, attendance.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo, err := attendance.NewSQLRepository(context.Background(), db, "sqlite")
	require.NoError(t, err)
	return db, repo
}

func seed(t *testing.T, repo attendance.Repository, userID uuid.UUID, in time.Time, out *time.Time) attendance.Session {
	t.Helper()
	s := attendance.Session{ID: uuid.New(), UserID: userID, CheckIn: in, CheckOut: out}
	require.NoError(t, repo.Create(context.Background(), &s))
	return s
}

func entryIDs(resp livestatus.LiveResponse) []string {
	ids := make([]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		ids = append(ids, e.SessionID)
	}
	return ids
}

func TestLive_NightShiftAdmission(t *testing.T) {
	ctx := context.Background()
	db, repo := newStore(t)
	worker := uuid.New()
	_, err := db.Exec(`INSERT INTO employees (id, full_name) VALUES (?, ?)`, worker.String(), "Ravi Kumar")
	require.NoError(t, err)

	lateOut := ist(2024, 5, 1, 0, 10)
	previousNight := seed(t, repo, worker, ist(2024, 4, 30, 23, 50), &lateOut)
	nightShift := seed(t, repo, uuid.New(), ist(2024, 5, 1, 0, 20), nil)
	dayShift := seed(t, repo, worker, ist(2024, 5, 1, 9, 0), nil)

	svc := livestatus.NewService(repo, clock.FixedClock{At: ist(2024, 5, 1, 12, 0)}, nil, 0)

	resp, err := svc.Live(ctx, livestatus.Query{Date: "2024-05-01"})

	require.NoError(t, err)
	assert.Equal(t, livestatus.ModeDate, resp.Mode)
	assert.ElementsMatch(t, []string{nightShift.ID.String(), dayShift.ID.String()}, entryIDs(resp))
	assert.NotContains(t, entryIDs(resp), previousNight.ID.String())

	byID := map[string]livestatus.LiveEntry{}
	for _, e := range resp.Entries {
		byID[e.SessionID] = e
	}
	day := byID[dayShift.ID.String()]
	assert.Equal(t, worker.String(), day.EmployeeID)
	assert.Equal(t, "Ravi Kumar", day.EmployeeName)
	assert.Equal(t, "2024-05-01T09:00:00+05:30", day.ClockIn)
	assert.Nil(t, day.ClockOut)
}

func TestLive_TodayAndHistory(t *testing.T) {
	ctx := context.Background()
	_, repo := newStore(t)
	user := uuid.New()
	now := ist(2026, 3, 10, 11, 0)

	out := ist(2026, 3, 9, 18, 0)
	yesterday := seed(t, repo, user, ist(2026, 3, 9, 9, 0), &out)
	eightDaysAgo := seed(t, repo, user, ist(2026, 3, 2, 9, 0), nil)
	today := seed(t, repo, uuid.New(), ist(2026, 3, 10, 8, 0), nil)

	svc := livestatus.NewService(repo, clock.FixedClock{At: now}, nil, 0)

	t.Run("today", func(t *testing.T) {
		resp, err := svc.Live(ctx, livestatus.Query{Today: true})
		require.NoError(t, err)
		assert.Equal(t, livestatus.ModeToday, resp.Mode)
		assert.Equal(t, []string{today.ID.String()}, entryIDs(resp))
	})

	t.Run("neither today nor date is the previous seven days", func(t *testing.T) {
		resp, err := svc.Live(ctx, livestatus.Query{})
		require.NoError(t, err)
		assert.Equal(t, livestatus.ModeHistory, resp.Mode)
		assert.Equal(t, "2026-03-03", resp.From)
		assert.Equal(t, "2026-03-09", resp.To)
		assert.Equal(t, []string{yesterday.ID.String()}, entryIDs(resp))
		assert.NotContains(t, entryIDs(resp), eightDaysAgo.ID.String())
		require.NotNil(t, resp.Entries[0].ClockOut)
		assert.Equal(t, "2026-03-09T18:00:00+05:30", *resp.Entries[0].ClockOut)
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := svc.Live(ctx, livestatus.Query{Date: "2026-13-01"})
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidDateFormat)
	})
}

func TestResolve(t *testing.T) {
	now := ist(2024, 5, 1, 12, 0)

	plan, err := livestatus.Resolve(livestatus.Query{Today: true, Date: "2024-04-01"}, now)
	require.NoError(t, err)
	assert.Equal(t, livestatus.ModeDate, plan.Mode, "explicit date wins")
	assert.Equal(t, "date:2024-04-01", plan.Label)

	assert.True(t, plan.Contains(ist(2024, 4, 1, 0, 20)))
	assert.True(t, plan.Contains(ist(2024, 4, 1, 23, 59)))
	assert.False(t, plan.Contains(ist(2024, 3, 31, 23, 50)))

	span := plan.Span()
	assert.True(t, span.Start.Equal(ist(2024, 4, 1, 0, 0)))
	assert.True(t, span.End.Equal(ist(2024, 4, 2, 0, 0)))

	// same civil day, different answers: they must not share a cache entry
	today, err := livestatus.Resolve(livestatus.Query{Today: true}, now)
	require.NoError(t, err)
	sameDay, err := livestatus.Resolve(livestatus.Query{Date: "2024-05-01"}, now)
	require.NoError(t, err)
	assert.Equal(t, "today:2024-05-01", today.Label)
	assert.Equal(t, "date:2024-05-01", sameDay.Label)
	assert.Equal(t, today.Windows, sameDay.Windows)
}

func TestLive_Cache(t *testing.T) {
	ctx := context.Background()
	now := ist(2026, 3, 10, 11, 0)
	key := livestatus.SnapshotKey(3, "today:2026-03-10")

	t.Run("miss loads from store and caches", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := attendanceMock.NewMockRepository(ctrl)
		rdb, mock := redismock.NewClientMock()

		mock.ExpectGet(livestatus.GenerationKey).SetVal("3")
		mock.ExpectGet(key).RedisNil()
		mock.Regexp().ExpectSet(key, `.*`, 15*time.Second).SetVal("OK")
		repo.EXPECT().
			ListIntersecting(ctx, "", gomock.Any()).
			Return([]attendance.Session{{ID: uuid.New(), UserID: uuid.New(), CheckIn: ist(2026, 3, 10, 9, 0)}}, nil)

		svc := livestatus.NewService(repo, clock.FixedClock{At: now}, rdb, 15*time.Second)
		resp, err := svc.Live(ctx, livestatus.Query{Today: true})

		require.NoError(t, err)
		assert.Len(t, resp.Entries, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hit skips the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := attendanceMock.NewMockRepository(ctrl)
		rdb, mock := redismock.NewClientMock()

		mock.ExpectGet(livestatus.GenerationKey).SetVal("3")
		mock.ExpectGet(key).SetVal(`{"mode":"today","from":"2026-03-10","to":"2026-03-10","entries":[{"sessionId":"s1","employeeId":"e1","employeeName":"Asha","clockIn":"2026-03-10T09:00:00+05:30","clockOut":null,"open":true}]}`)
		repo.EXPECT().ListIntersecting(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		svc := livestatus.NewService(repo, clock.FixedClock{At: now}, rdb, 15*time.Second)
		resp, err := svc.Live(ctx, livestatus.Query{Today: true})

		require.NoError(t, err)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "Asha", resp.Entries[0].EmployeeName)
		assert.Equal(t, livestatus.ModeToday, resp.Mode)
	})

	t.Run("explicit date of today does not reuse the today snapshot", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := attendanceMock.NewMockRepository(ctrl)
		rdb, mock := redismock.NewClientMock()
		dateKey := livestatus.SnapshotKey(3, "date:2026-03-10")

		mock.ExpectGet(livestatus.GenerationKey).SetVal("3")
		mock.ExpectGet(dateKey).RedisNil()
		mock.Regexp().ExpectSet(dateKey, `.*`, 15*time.Second).SetVal("OK")
		repo.EXPECT().ListIntersecting(ctx, "", gomock.Any()).Return(nil, nil)

		svc := livestatus.NewService(repo, clock.FixedClock{At: now}, rdb, 15*time.Second)
		resp, err := svc.Live(ctx, livestatus.Query{Date: "2026-03-10"})

		require.NoError(t, err)
		assert.Equal(t, livestatus.ModeDate, resp.Mode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis down falls back to the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := attendanceMock.NewMockRepository(ctrl)
		rdb, mock := redismock.NewClientMock()

		mock.ExpectGet(livestatus.GenerationKey).SetErr(errors.New("conn refused"))
		repo.EXPECT().ListIntersecting(ctx, "", gomock.Any()).Return(nil, nil)

		svc := livestatus.NewService(repo, clock.FixedClock{At: now}, rdb, 15*time.Second)
		resp, err := svc.Live(ctx, livestatus.Query{Today: true})

		require.NoError(t, err)
		assert.Empty(t, resp.Entries)
	})
}

func TestInvalidator(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps generation and publishes", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectIncr(livestatus.GenerationKey).SetVal(4)
		mock.ExpectPublish(livestatus.ChangedChannel, int64(4)).SetVal(1)
		local := 0

		livestatus.NewInvalidator(rdb, func() { local++ }).SessionChanged(ctx)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 0, local)
	})

	t.Run("without redis pokes the local hub", func(t *testing.T) {
		local := 0
		livestatus.NewInvalidator(nil, func() { local++ }).SessionChanged(ctx)
		assert.Equal(t, 1, local)
	})
}
