package idle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ActivitySource reports when the user last touched the machine.
type ActivitySource interface {
	LastActivity(ctx context.Context) (time.Time, error)
}

// Runner drives one Monitor from a single goroutine: it polls the activity
// source, applies confirmations and ticks the machine until it closes.
type Runner struct {
	Monitor  *Monitor
	Source   ActivitySource
	Confirms <-chan struct{}
	Tick     time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
}

// Run returns the last state, either Closed or whatever it was when ctx ended.
func (r Runner) Run(ctx context.Context) State {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	tick := r.Tick
	if tick <= 0 {
		tick = 30 * time.Second
	}
	log := r.Logger
	if log == nil {
		log = zap.L()
	}
	log = log.Named("idle.runner")

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	state := r.Monitor.Snapshot(now())
	for {
		select {
		case <-ctx.Done():
			return state
		case <-r.Confirms:
			r.Monitor.Confirm(ctx, now())
		case <-ticker.C:
			if r.Source != nil {
				at, err := r.Source.LastActivity(ctx)
				if err != nil {
					log.Debug("activity poll failed", zap.Error(err))
				} else {
					r.Monitor.Activity(at)
				}
			}
			state = r.Monitor.Tick(ctx, now())
			if state.Phase == PhaseClosed {
				return state
			}
		}
	}
}
