// Package desktop adapts systemd-logind and desktop notifications to the
// idle monitor.
package desktop

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	login1Service   = "org.freedesktop.login1"
	login1Path      = dbus.ObjectPath("/org/freedesktop/login1")
	login1Manager   = "org.freedesktop.login1.Manager"
	login1Session   = "org.freedesktop.login1.Session"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// Teardown reasons reported by LogindSource.Teardown.
const (
	TeardownShutdown       = "shutdown"
	TeardownSessionRemoved = "session_removed"
)

// LogindSource reads the idle hint of the agent's login session.
type LogindSource struct {
	conn    *dbus.Conn
	session dbus.ObjectPath
	logger  *zap.Logger
	now     func() time.Time
}

// NewLogindSource finds the session of this process: XDG_SESSION_ID first,
// then the session owning our PID.
func NewLogindSource(logger *zap.Logger) (*LogindSource, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	manager := conn.Object(login1Service, login1Path)
	var session dbus.ObjectPath
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		err = manager.Call(login1Manager+".GetSession", 0, id).Store(&session)
	} else {
		err = manager.Call(login1Manager+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&session)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to resolve login session: %w", err)
	}

	return &LogindSource{
		conn:    conn,
		session: session,
		logger:  logger.Named("desktop.logind"),
		now:     time.Now,
	}, nil
}

func (s *LogindSource) Close() error {
	return s.conn.Close()
}

// LastActivity implements idle.ActivitySource.
func (s *LogindSource) LastActivity(ctx context.Context) (time.Time, error) {
	obj := s.conn.Object(login1Service, s.session)

	var idleHint dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesIface+".Get", 0, login1Session, "IdleHint").Store(&idleHint); err != nil {
		return time.Time{}, fmt.Errorf("failed to get IdleHint: %w", err)
	}
	var idleSince dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesIface+".Get", 0, login1Session, "IdleSinceHint").Store(&idleSince); err != nil {
		return time.Time{}, fmt.Errorf("failed to get IdleSinceHint: %w", err)
	}

	idle, _ := idleHint.Value().(bool)
	since, _ := idleSince.Value().(uint64)
	return lastActivityFrom(idle, since, s.now()), nil
}

// lastActivityFrom turns logind hints into a last-activity instant. A session
// that is not idle, or reports no idle start, is active now.
func lastActivityFrom(idle bool, idleSinceMicros uint64, now time.Time) time.Time {
	if !idle || idleSinceMicros == 0 {
		return now
	}
	return time.UnixMicro(int64(idleSinceMicros))
}

// Teardown reports when the machine prepares to shut down or our session is
// removed. The channel is closed when ctx ends.
func (s *LogindSource) Teardown(ctx context.Context) (<-chan string, error) {
	for _, member := range []string{"PrepareForShutdown", "SessionRemoved"} {
		if err := s.conn.AddMatchSignal(
			dbus.WithMatchObjectPath(login1Path),
			dbus.WithMatchInterface(login1Manager),
			dbus.WithMatchMember(member),
		); err != nil {
			return nil, fmt.Errorf("add match failed: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 10)
	s.conn.Signal(signals)

	out := make(chan string, 1)
	go func() {
		defer close(out)
		defer s.conn.RemoveSignal(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				if reason := teardownReason(sig, s.session); reason != "" {
					s.logger.Info("login session teardown", zap.String("reason", reason))
					select {
					case out <- reason:
					default:
					}
				}
			}
		}
	}()
	return out, nil
}

func teardownReason(sig *dbus.Signal, session dbus.ObjectPath) string {
	if sig == nil {
		return ""
	}
	switch sig.Name {
	case login1Manager + ".PrepareForShutdown":
		if len(sig.Body) > 0 {
			if active, _ := sig.Body[0].(bool); active {
				return TeardownShutdown
			}
		}
	case login1Manager + ".SessionRemoved":
		if len(sig.Body) >= 2 {
			if path, ok := sig.Body[1].(dbus.ObjectPath); ok && path == session {
				return TeardownSessionRemoved
			}
		}
	}
	return ""
}
