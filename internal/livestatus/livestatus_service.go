package livestatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tn-work/internal/attendance"
	attendanceerrors "tn-work/internal/attendance/errors"
	"tn-work/internal/shared/clock"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	historyDays = 7

	// GenerationKey is bumped on every session change; snapshot keys embed it
	// so one INCR retires every cached snapshot.
	GenerationKey  = "attendance:live:gen"
	ChangedChannel = "attendance:live:changed"

	defaultCacheTTL = 15 * time.Second
)

func SnapshotKey(generation int64, label string) string {
	return fmt.Sprintf("attendance:live:%d:%s", generation, label)
}

type Service interface {
	Live(ctx context.Context, q Query) (LiveResponse, error)
}

type service struct {
	repo   attendance.Repository
	clock  clock.Clock
	rdb    *redis.Client
	ttl    time.Duration
	sf     *singleflight.Group
	logger *zap.Logger
}

func NewService(repo attendance.Repository, clk clock.Clock, rdb *redis.Client, ttl time.Duration, logger ...*zap.Logger) Service {
	l := zap.L().Named("livestatus.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("livestatus.service")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &service{
		repo:   repo,
		clock:  clk,
		rdb:    rdb,
		ttl:    ttl,
		sf:     &singleflight.Group{},
		logger: l,
	}
}

// Plan is the resolved set of windows a query reads.
type Plan struct {
	Mode    string
	Label   string
	Windows []clock.Window
}

// Resolve turns a query into windows. A day query covers the civil day and
// its [00:00, 05:00) early-morning window, so a night-shift check-in at
// 00:20 is still listed for that date.
func Resolve(q Query, now time.Time) (Plan, error) {
	switch {
	case q.Date != "":
		d, err := clock.ParseDate(q.Date)
		if err != nil {
			return Plan{}, attendanceerrors.ErrInvalidDateFormat
		}
		return dayPlan(ModeDate, d), nil
	case q.Today:
		return dayPlan(ModeToday, now), nil
	default:
		w := clock.PreviousDaysWindow(now, historyDays)
		return Plan{Mode: ModeHistory, Label: "history:" + w.Label, Windows: []clock.Window{w}}, nil
	}
}

func dayPlan(mode string, anchor time.Time) Plan {
	day := clock.DayWindow(anchor)
	return Plan{
		Mode:    mode,
		Label:   mode + ":" + day.Label,
		Windows: []clock.Window{day, clock.EarlyMorningWindow(anchor)},
	}
}

// Span is the smallest window covering every window of the plan.
func (p Plan) Span() clock.Window {
	span := p.Windows[0]
	for _, w := range p.Windows[1:] {
		if w.Start.Before(span.Start) {
			span.Start = w.Start
		}
		if w.End.After(span.End) {
			span.End = w.End
		}
	}
	span.Label = p.Label
	return span
}

func (p Plan) Contains(t time.Time) bool {
	for _, w := range p.Windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

func (s *service) Live(ctx context.Context, q Query) (LiveResponse, error) {
	now := s.clock.Now()
	plan, err := Resolve(q, now)
	if err != nil {
		return LiveResponse{}, err
	}

	cacheKey := ""
	if s.rdb != nil {
		cacheKey = s.snapshotKey(ctx, plan.Label)
		if cacheKey != "" {
			if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
				var resp LiveResponse
				if json.Unmarshal([]byte(cached), &resp) == nil {
					return resp, nil
				}
			}
		}
	}

	sfKey := plan.Label
	if cacheKey != "" {
		sfKey = cacheKey
	}
	v, err, _ := s.sf.Do(sfKey, func() (interface{}, error) {
		resp, err := s.load(ctx, plan, now)
		if err != nil {
			return nil, err
		}
		if cacheKey != "" {
			if payload, err := json.Marshal(resp); err == nil {
				if err := s.rdb.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
					s.logger.Warn("live snapshot cache write failed", zap.String("key", cacheKey), zap.Error(err))
				}
			}
		}
		return resp, nil
	})
	if err != nil {
		return LiveResponse{}, err
	}
	return v.(LiveResponse), nil
}

// snapshotKey returns "" when redis cannot tell the current generation.
func (s *service) snapshotKey(ctx context.Context, label string) string {
	gen, err := s.rdb.Get(ctx, GenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("live snapshot generation read failed", zap.Error(err))
		return ""
	}
	return SnapshotKey(gen, label)
}

func (s *service) load(ctx context.Context, plan Plan, now time.Time) (LiveResponse, error) {
	span := plan.Span()
	sessions, err := s.repo.ListIntersecting(ctx, "", span)
	if err != nil {
		s.logger.Error("live feed list failed", zap.String("label", plan.Label), zap.Error(err))
		return LiveResponse{}, err
	}

	entries := make([]LiveEntry, 0, len(sessions))
	seen := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		id := session.ID.String()
		if _, dup := seen[id]; dup || !plan.Contains(session.CheckIn) {
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, toEntry(session))
	}

	return LiveResponse{
		Mode:        plan.Mode,
		From:        clock.FormatDate(span.Start),
		To:          clock.FormatDate(span.Last()),
		Entries:     entries,
		GeneratedAt: now,
	}, nil
}

func toEntry(s attendance.Session) LiveEntry {
	e := LiveEntry{
		SessionID:  s.ID.String(),
		EmployeeID: s.UserID.String(),
		ClockIn:    s.CheckIn.In(clock.IST).Format(time.RFC3339),
		Open:       s.IsOpen(),
	}
	if s.Employee != nil {
		e.EmployeeName = s.Employee.FullName
	}
	if s.CheckOut != nil {
		v := s.CheckOut.In(clock.IST).Format(time.RFC3339)
		e.ClockOut = &v
	}
	return e
}
