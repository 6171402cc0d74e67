package attendance

import (
	"context"
	"time"

	"tn-work/internal/events"

	"go.uber.org/zap"
)

// CloseStale closes every session left open longer than maxAge. It backs up
// the best-effort client beacon, so a lost unload signal cannot keep a
// session open forever.
func (s *service) CloseStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := s.now()
	cutoff := now.Add(-maxAge)

	stale, err := s.repo.ListOpenBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("list stale sessions failed", zap.Error(err))
		return 0, mapRepositoryError(err)
	}

	closed := 0
	for _, session := range stale {
		ok, err := s.closeStale(ctx, session, now)
		if err != nil {
			s.logger.Error("close stale session failed",
				zap.String("session_id", session.ID.String()),
				zap.String("user_id", session.UserID.String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			closed++
		}
	}

	if closed > 0 {
		s.notifyChanged(ctx)
		s.logger.Info("stale sessions closed", zap.Int("count", closed), zap.Duration("max_age", maxAge))
	}
	return closed, nil
}

func (s *service) closeStale(ctx context.Context, session Session, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	ok, err := s.repo.WithTx(tx).Close(ctx, session.ID, now, CloseSourceSweeper)
	if err != nil || !ok {
		return false, err
	}
	session.CheckOut = &now
	session.CloseSource = CloseSourceSweeper

	if err := s.enqueueEvent(ctx, tx, events.AttendanceSessionClosed, session, now); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

const defaultSweepInterval = 5 * time.Minute

// RunStaleSweeper calls CloseStale on every tick until ctx is done.
func RunStaleSweeper(ctx context.Context, svc Service, maxAge, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	log := logger.Named("attendance.sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("stale session sweeper started", zap.Duration("interval", interval), zap.Duration("max_age", maxAge))

	for {
		select {
		case <-ctx.Done():
			log.Info("stale session sweeper stopped")
			return
		case <-ticker.C:
			if _, err := svc.CloseStale(ctx, maxAge); err != nil {
				log.Error("stale session sweep failed", zap.Error(err))
			}
		}
	}
}
