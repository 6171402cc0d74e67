package arg

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"tn-work/internal/clockclient"
	"tn-work/internal/desktop"
	"tn-work/internal/idle"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the open session and clock out after inactivity",
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, client, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logind, err := desktop.NewLogindSource(logger)
	if err != nil {
		return fmt.Errorf("idle detection needs systemd-logind: %w", err)
	}
	defer logind.Close()

	teardown, err := logind.Teardown(ctx)
	if err != nil {
		logger.Warn("session teardown watch unavailable", zap.Error(err))
	}

	w := &watcher{
		api:        client,
		source:     logind,
		thresholds: cfg.IdleThresholds(),
		tick:       cfg.Tick.Duration,
		logger:     logger.Named("clockwatch"),
	}

	if cfg.NotificationsEnabled() {
		notifier, err := desktop.NewNotifier(logger)
		if err != nil {
			logger.Warn("desktop notifications unavailable", zap.Error(err))
		} else {
			defer notifier.Close()
			go func() {
				if err := notifier.Listen(ctx); err != nil {
					logger.Warn("notification actions unavailable", zap.Error(err))
				}
			}()
			w.notifier = notifier
			w.confirms = notifier.Confirms()
		}
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	done := make(chan error, 1)
	go func() { done <- w.loop(watchCtx) }()

	reason := "signal"
	select {
	case err := <-done:
		return err
	case r, ok := <-teardown:
		if ok {
			reason = r
		}
	case <-ctx.Done():
	}
	cancelWatch()
	<-done

	if w.monitoring() {
		logger.Info("agent stopping, sending clock-out beacon", zap.String("reason", reason))
		<-client.Beacon(clockclient.SourceBeacon)
	}
	return nil
}

type clockAPI interface {
	Status(ctx context.Context) (clockclient.Status, error)
	ClockOut(ctx context.Context, source string) (clockclient.ClockOutResult, error)
}

// watcher runs one idle monitor per open session, one after another.
type watcher struct {
	api        clockAPI
	source     idle.ActivitySource
	notifier   idle.Notifier
	confirms   <-chan struct{}
	thresholds idle.Thresholds
	tick       time.Duration
	now        func() time.Time
	logger     *zap.Logger

	active atomic.Bool
	// closedSession is the session the last monitor closed. If the forced
	// clock-out did not land it stays open and must not be watched again.
	closedSession string
}

func (w *watcher) monitoring() bool {
	return w.active.Load()
}

func (w *watcher) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// loop returns nil once ctx ends.
func (w *watcher) loop(ctx context.Context) error {
	for {
		st, err := w.waitForOpenSession(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		identity := idle.Identity{UserID: st.UserID, Role: st.Role}
		opts := []idle.Option{idle.WithLogger(w.logger)}
		if w.notifier != nil {
			opts = append(opts, idle.WithNotifier(w.notifier))
		}
		monitor := idle.NewMonitor(identity, w.clock(), w.thresholds, idle.CheckOutFunc(w.checkOut), opts...)

		w.logger.Info("watching open session",
			zap.String("user_id", identity.UserID),
			zap.String("role", identity.Role),
			zap.Duration("first_idle", w.thresholds.FirstIdleFor(identity.Role)),
		)

		sessionID := ""
		if st.Session != nil {
			sessionID = st.Session.ID
		}

		w.active.Store(true)
		state := idle.Runner{
			Monitor:  monitor,
			Source:   w.source,
			Confirms: w.confirms,
			Tick:     w.tick,
			Now:      w.now,
			Logger:   w.logger,
		}.Run(ctx)
		w.active.Store(false)

		if state.Phase != idle.PhaseClosed {
			return nil
		}
		w.closedSession = sessionID
	}
}

func (w *watcher) checkOut(ctx context.Context) error {
	_, err := w.api.ClockOut(ctx, clockclient.SourceIdleTimeout)
	return err
}

func (w *watcher) isClosedSession(st clockclient.Status) bool {
	return w.closedSession != "" && st.Session != nil && st.Session.ID == w.closedSession
}

// waitForOpenSession polls the status endpoint until the user is clocked in.
// A rejected token stops the agent; other failures are retried.
func (w *watcher) waitForOpenSession(ctx context.Context) (clockclient.Status, error) {
	interval := w.tick
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := w.api.Status(ctx)
		switch {
		case err == nil && st.IsIn() && w.isClosedSession(st):
			w.logger.Debug("idle-closed session is still open, waiting for a new one", zap.String("session_id", st.Session.ID))
		case err == nil && st.IsIn():
			return st, nil
		case err != nil:
			var apiErr *clockclient.APIError
			if errors.As(err, &apiErr) && (apiErr.Status == 401 || apiErr.Status == 403) {
				return clockclient.Status{}, err
			}
			w.logger.Debug("status poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return clockclient.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
