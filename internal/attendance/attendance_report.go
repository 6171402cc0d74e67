package attendance

import (
	"context"
	"time"

	attendanceerrors "tn-work/internal/attendance/errors"
	"tn-work/internal/shared/clock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *service) TodayHours(ctx context.Context, userID string) (HoursResponse, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return HoursResponse{}, attendanceerrors.ErrInvalidUserID
	}
	now := s.now()
	w := clock.DayWindow(now)

	sessions, err := s.repo.ListIntersecting(ctx, userID, w)
	if err != nil {
		s.logger.Error("today hours list failed", zap.String("user_id", userID), zap.Error(err))
		return HoursResponse{}, mapRepositoryError(err)
	}
	return HoursResponse{Date: w.Label, Hours: TotalHours(sessions, w, now)}, nil
}

// WeeklyReport covers the Monday-start week of date, or of today when date is empty.
func (s *service) WeeklyReport(ctx context.Context, userID, date string) (ReportResponse, error) {
	now := s.now()
	anchor := now
	if date != "" {
		d, err := clock.ParseDate(date)
		if err != nil {
			return ReportResponse{}, attendanceerrors.ErrInvalidDateFormat
		}
		anchor = d
	}
	return s.report(ctx, userID, clock.WeekWindow(anchor), GranularityWeekOfDays, now)
}

// MonthlyReport covers month (YYYY-MM), or the current month when empty.
func (s *service) MonthlyReport(ctx context.Context, userID, month string) (ReportResponse, error) {
	now := s.now()
	anchor := now
	if month != "" {
		m, err := time.ParseInLocation(monthLayout, month, clock.IST)
		if err != nil {
			return ReportResponse{}, attendanceerrors.ErrInvalidMonthFormat
		}
		anchor = m
	}
	return s.report(ctx, userID, clock.MonthWindow(anchor), GranularityDay, now)
}

func (s *service) RangeReport(ctx context.Context, userID, from, to string) (ReportResponse, error) {
	fromDate, err := clock.ParseDate(from)
	if err != nil {
		return ReportResponse{}, attendanceerrors.ErrInvalidDateFormat
	}
	toDate, err := clock.ParseDate(to)
	if err != nil {
		return ReportResponse{}, attendanceerrors.ErrInvalidDateFormat
	}
	if fromDate.After(toDate) {
		return ReportResponse{}, attendanceerrors.ErrInvalidDateRange
	}
	w := clock.RangeWindow(fromDate, toDate)
	if len(w.Days()) > maxRangeDays {
		return ReportResponse{}, attendanceerrors.ErrDateRangeTooLarge
	}
	return s.report(ctx, userID, w, GranularityDay, s.now())
}

func (s *service) report(ctx context.Context, userID string, w clock.Window, g Granularity, now time.Time) (ReportResponse, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return ReportResponse{}, attendanceerrors.ErrInvalidUserID
	}

	sessions, err := s.repo.ListIntersecting(ctx, userID, w)
	if err != nil {
		s.logger.Error("report list failed",
			zap.String("user_id", userID),
			zap.String("period", w.Label),
			zap.Error(err),
		)
		return ReportResponse{}, mapRepositoryError(err)
	}

	buckets := Bucketed(sessions, w, g, now)
	resp := ReportResponse{
		Period:     w.Label,
		From:       clock.FormatDate(w.Start),
		To:         clock.FormatDate(w.Last()),
		TotalHours: TotalHours(sessions, w, now),
		Buckets:    make([]BucketResponse, 0, len(buckets)),
	}
	for _, b := range buckets {
		resp.Buckets = append(resp.Buckets, BucketResponse{
			Label: b.Label,
			Date:  clock.FormatDate(b.Date),
			Hours: b.Hours,
		})
	}
	return resp, nil
}
