package idle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// steppingClock advances a fixed step on every read.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type fixedActivity struct {
	at time.Time
}

func (f fixedActivity) LastActivity(ctx context.Context) (time.Time, error) {
	return f.at, nil
}

func TestRunner_ClosesIdleSession(t *testing.T) {
	co := &countingCheckOut{}
	m := NewMonitor(Identity{UserID: "u1", Role: "EMPLOYEE"}, start, DefaultThresholds(), co)
	clk := &steppingClock{now: start, step: 10 * time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state := Runner{
		Monitor: m,
		Source:  fixedActivity{at: start},
		Tick:    time.Millisecond,
		Now:     clk.Now,
		Logger:  zap.NewNop(),
	}.Run(ctx)

	assert.Equal(t, PhaseClosed, state.Phase)
	assert.Equal(t, 1, co.count())
}

func TestRunner_ConfirmKeepsSessionOpen(t *testing.T) {
	co := &countingCheckOut{}
	th := Thresholds{FirstIdle: time.Hour, RepeatIdle: 2 * time.Hour, Countdown: 1000 * time.Hour}
	m := NewMonitor(Identity{UserID: "u1"}, start, th, co)
	clk := &steppingClock{now: start, step: 20 * time.Minute}
	confirms := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State)
	go func() {
		done <- Runner{Monitor: m, Confirms: confirms, Tick: time.Millisecond, Now: clk.Now, Logger: zap.NewNop()}.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return m.Snapshot(start).Phase == PhaseWarning }, 2*time.Second, time.Millisecond)
	confirms <- struct{}{}
	assert.Eventually(t, func() bool { return m.Snapshot(start).IdleLimit == 2*time.Hour }, 2*time.Second, time.Millisecond)

	cancel()
	state := <-done
	assert.NotEqual(t, PhaseClosed, state.Phase)
	assert.Zero(t, co.count())
}
