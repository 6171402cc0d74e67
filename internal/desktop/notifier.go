package desktop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface   = "org.freedesktop.Notifications"

	appName       = "clockwatch"
	confirmAction = "confirm"

	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// Notifier shows the idle warning on the user's session bus. Pressing its
// "still working" action is the confirmation of the idle monitor.
type Notifier struct {
	conn     *dbus.Conn
	logger   *zap.Logger
	confirms chan struct{}

	mu        sync.Mutex
	warningID uint32
}

func NewNotifier(logger *zap.Logger) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Notifier{
		conn:     conn,
		logger:   logger.Named("desktop.notifier"),
		confirms: make(chan struct{}, 1),
	}, nil
}

func (n *Notifier) Close() error {
	return n.conn.Close()
}

// Confirms delivers one value per confirmed warning.
func (n *Notifier) Confirms() <-chan struct{} {
	return n.confirms
}

// Listen forwards ActionInvoked signals of our warning until ctx ends.
func (n *Notifier) Listen(ctx context.Context) error {
	if err := n.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notificationsPath),
		dbus.WithMatchInterface(notificationsIface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		return fmt.Errorf("add match failed: %w", err)
	}

	signals := make(chan *dbus.Signal, 10)
	n.conn.Signal(signals)
	defer n.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-signals:
			n.mu.Lock()
			id := n.warningID
			n.mu.Unlock()
			if isConfirm(sig, id) {
				n.logger.Info("idle warning confirmed from notification")
				select {
				case n.confirms <- struct{}{}:
				default:
				}
			}
		}
	}
}

func isConfirm(sig *dbus.Signal, warningID uint32) bool {
	if sig == nil || warningID == 0 || sig.Name != notificationsIface+".ActionInvoked" || len(sig.Body) < 2 {
		return false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok || id != warningID {
		return false
	}
	action, _ := sig.Body[1].(string)
	return action == confirmAction
}

func (n *Notifier) ShowWarning(ctx context.Context, countdown time.Duration) error {
	n.mu.Lock()
	replaces := n.warningID
	n.mu.Unlock()

	id, err := n.notify(ctx, replaces,
		"Are you still working?",
		fmt.Sprintf("You will be clocked out in %s unless you confirm.", formatCountdown(countdown)),
		[]string{confirmAction, "I'm still working"},
		urgencyCritical, 0,
	)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.warningID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) DismissWarning(ctx context.Context) {
	n.mu.Lock()
	id := n.warningID
	n.warningID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}
	obj := n.conn.Object(notificationsService, notificationsPath)
	if call := obj.CallWithContext(ctx, notificationsIface+".CloseNotification", 0, id); call.Err != nil {
		n.logger.Debug("close notification failed", zap.Error(call.Err))
	}
}

func (n *Notifier) ShowClosed(ctx context.Context, checkOutErr error) {
	body := "You were clocked out after a period of inactivity."
	if checkOutErr != nil {
		body = "Inactivity detected. The clock-out request could not be confirmed."
	}
	if _, err := n.notify(ctx, 0, "Clocked out", body, []string{}, urgencyNormal, 10000); err != nil {
		n.logger.Debug("closed notification failed", zap.Error(err))
	}
}

func (n *Notifier) notify(ctx context.Context, replaces uint32, summary, body string, actions []string, urgency byte, expireMillis int32) (uint32, error) {
	obj := n.conn.Object(notificationsService, notificationsPath)
	var id uint32
	err := obj.CallWithContext(ctx, notificationsIface+".Notify", 0,
		appName,
		replaces,
		"dialog-warning",
		summary,
		body,
		actions,
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(urgency),
		},
		expireMillis,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}
	return id, nil
}

func formatCountdown(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour(s) %d minute(s)", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%d minute(s)", minutes)
	default:
		return fmt.Sprintf("%d second(s)", seconds)
	}
}
