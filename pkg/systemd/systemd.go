// Package systemd reports service state to systemd over sd_notify. Every
// call is a no-op when the process is not run as a notify unit.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "giveawaybot/pkg/logx"
)

func notify(log logx.Logger, state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
	return sent
}

func Ready(log logx.Logger) bool { return notify(log, daemon.SdNotifyReady) }

func Stopping(log logx.Logger) bool { return notify(log, daemon.SdNotifyStopping) }

func Status(log logx.Logger, text string) bool { return notify(log, "STATUS="+text) }

// WatchdogInterval returns half the unit's WatchdogSec, or 0 when the
// watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings systemd every interval until done is closed.
func Watchdog(log logx.Logger, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
