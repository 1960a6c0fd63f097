// Package systemd reports service state to systemd through sd_notify.
// Every call is a no-op when the process is not run by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "guildwatch/pkg/logx"
)

// Notifier sends sd_notify states.
type Notifier struct {
	log logx.Logger
}

func NewNotifier(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) notify(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

// Ready tells systemd startup finished. It reports whether systemd listened.
func (n *Notifier) Ready() bool { return n.notify(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown began.
func (n *Notifier) Stopping() bool { return n.notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) bool { return n.notify("STATUS=" + s) }

// Watchdog pings the watchdog at half the configured interval until ctx ends.
// It returns immediately when WatchdogSec is not set for the unit.
func (n *Notifier) Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	n.log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
