package systemd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	logx "giveawaybot/pkg/logx"
)

func TestOutsideSystemdIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	assert.False(t, Ready(logx.Nop()))
	assert.False(t, Stopping(logx.Nop()))
	assert.Zero(t, WatchdogInterval())

	done := make(chan struct{})
	close(done)
	Watchdog(logx.Nop(), 0, done)
	Watchdog(logx.Nop(), time.Millisecond, done)
}
