// Package systemd reports service state to systemd via sd_notify.
// Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

type Notifier struct {
	notify   notifyFunc
	interval func() (time.Duration, error)
}

func New() *Notifier {
	return &Notifier{notify: daemon.SdNotify, interval: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }}
}

// Ready reports READY=1 with an optional status line.
func (n *Notifier) Ready(status string) (bool, error) {
	state := daemon.SdNotifyReady
	if status != "" {
		state += "\nSTATUS=" + status
	}
	return n.notify(false, state)
}

func (n *Notifier) Stopping() (bool, error) {
	return n.notify(false, daemon.SdNotifyStopping)
}

func (n *Notifier) Reloading() (bool, error) {
	return n.notify(false, fmt.Sprintf("%s\nMONOTONIC_USEC=%d", daemon.SdNotifyReloading, time.Now().UnixMicro()))
}

func (n *Notifier) Status(status string) (bool, error) {
	return n.notify(false, "STATUS="+status)
}

// Watchdog pings WATCHDOG=1 at half the configured WatchdogSec until ctx is done.
// It returns immediately when the watchdog is not enabled for this process.
// healthy may be nil; a non-nil error from it skips that ping.
func (n *Notifier) Watchdog(ctx context.Context, healthy func(ctx context.Context) error) error {
	every, err := n.interval()
	if err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && healthy(ctx) != nil {
				continue
			}
			if _, err := n.notify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
