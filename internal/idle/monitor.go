// Package idle holds the desktop agent's inactivity state machine.
//
// A Monitor is built for one open session and one identity. It moves
// Active -> Warning -> Closed, or back from Warning to Active when the user
// confirms. Closed is terminal; a new session gets a new Monitor.
package idle

import (
	"context"
	"sync"
	"time"

	"tn-work/internal/domain"

	"go.uber.org/zap"
)

type Phase string

const (
	PhaseActive  Phase = "ACTIVE"
	PhaseWarning Phase = "WARNING"
	PhaseClosed  Phase = "CLOSED"
)

type Thresholds struct {
	FirstIdle           time.Duration
	PrivilegedFirstIdle time.Duration
	RepeatIdle          time.Duration
	Countdown           time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FirstIdle:           5 * time.Hour,
		PrivilegedFirstIdle: 8 * time.Hour,
		RepeatIdle:          2 * time.Hour,
		Countdown:           30 * time.Minute,
	}
}

// FirstIdleFor is the threshold of the first idle period after the session opened.
func (t Thresholds) FirstIdleFor(role string) time.Duration {
	if domain.IsPrivilegedRole(role) {
		return t.PrivilegedFirstIdle
	}
	return t.FirstIdle
}

type Identity struct {
	UserID string
	Role   string
}

// CheckOuter issues the forced check-out.
type CheckOuter interface {
	CheckOut(ctx context.Context) error
}

type CheckOutFunc func(ctx context.Context) error

func (f CheckOutFunc) CheckOut(ctx context.Context) error { return f(ctx) }

// Notifier tells the user about the countdown. All methods are best effort.
type Notifier interface {
	ShowWarning(ctx context.Context, countdown time.Duration) error
	DismissWarning(ctx context.Context)
	ShowClosed(ctx context.Context, checkOutErr error)
}

type State struct {
	Phase              Phase
	LastActivityAt     time.Time
	IdleLimit          time.Duration
	CountdownRemaining time.Duration
}

type Monitor struct {
	mu sync.Mutex

	identity   Identity
	thresholds Thresholds
	checkOut   CheckOuter
	notifier   Notifier
	logger     *zap.Logger

	phase        Phase
	lastActivity time.Time
	idleLimit    time.Duration
	warnedAt     time.Time
	checkedOut   bool
}

type Option func(*Monitor)

func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l.Named("idle.monitor")
		}
	}
}

func NewMonitor(identity Identity, start time.Time, thresholds Thresholds, checkOut CheckOuter, opts ...Option) *Monitor {
	m := &Monitor{
		identity:     identity,
		thresholds:   thresholds,
		checkOut:     checkOut,
		logger:       zap.L().Named("idle.monitor"),
		phase:        PhaseActive,
		lastActivity: start,
		idleLimit:    thresholds.FirstIdleFor(identity.Role),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("user_id", identity.UserID), zap.String("role", identity.Role))
	return m
}

func (m *Monitor) Identity() Identity {
	return m.identity
}

// Activity records user input seen at at. Only an Active monitor is reset by
// it; leaving Warning needs an explicit Confirm.
func (m *Monitor) Activity(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseActive && at.After(m.lastActivity) {
		m.lastActivity = at
	}
}

// Confirm answers the warning. The next idle period uses the repeat threshold.
func (m *Monitor) Confirm(ctx context.Context, at time.Time) bool {
	m.mu.Lock()
	if m.phase != PhaseWarning {
		m.mu.Unlock()
		return false
	}
	m.phase = PhaseActive
	m.lastActivity = at
	m.idleLimit = m.thresholds.RepeatIdle
	m.mu.Unlock()

	m.logger.Info("idle warning confirmed", zap.Duration("next_idle_limit", m.thresholds.RepeatIdle))
	if m.notifier != nil {
		m.notifier.DismissWarning(ctx)
	}
	return true
}

// Tick advances the machine to now and performs the side effect of any
// transition it takes.
func (m *Monitor) Tick(ctx context.Context, now time.Time) State {
	m.mu.Lock()
	var enteredWarning, enteredClosed bool
	switch m.phase {
	case PhaseActive:
		if now.Sub(m.lastActivity) >= m.idleLimit {
			m.phase = PhaseWarning
			m.warnedAt = now
			enteredWarning = true
		}
	case PhaseWarning:
		if now.Sub(m.warnedAt) >= m.thresholds.Countdown && !m.checkedOut {
			m.phase = PhaseClosed
			m.checkedOut = true
			enteredClosed = true
		}
	}
	state := m.stateLocked(now)
	m.mu.Unlock()

	if enteredWarning {
		m.logger.Info("idle threshold reached, countdown started",
			zap.Time("last_activity_at", state.LastActivityAt),
			zap.Duration("idle_limit", state.IdleLimit),
			zap.Duration("countdown", m.thresholds.Countdown),
		)
		if m.notifier != nil {
			if err := m.notifier.ShowWarning(ctx, m.thresholds.Countdown); err != nil {
				m.logger.Warn("show idle warning failed", zap.Error(err))
			}
		}
	}
	if enteredClosed {
		m.close(ctx)
	}
	return state
}

// close sends the one check-out of this monitor. A failure is logged, never retried.
func (m *Monitor) close(ctx context.Context) {
	err := m.checkOut.CheckOut(ctx)
	if err != nil {
		m.logger.Warn("forced clock out failed", zap.Error(err))
	} else {
		m.logger.Info("forced clock out sent")
	}
	if m.notifier != nil {
		m.notifier.DismissWarning(ctx)
		m.notifier.ShowClosed(ctx, err)
	}
}

func (m *Monitor) Snapshot(now time.Time) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(now)
}

func (m *Monitor) stateLocked(now time.Time) State {
	s := State{
		Phase:          m.phase,
		LastActivityAt: m.lastActivity,
		IdleLimit:      m.idleLimit,
	}
	if m.phase == PhaseWarning {
		s.CountdownRemaining = m.thresholds.Countdown - now.Sub(m.warnedAt)
		if s.CountdownRemaining < 0 {
			s.CountdownRemaining = 0
		}
	}
	return s
}
