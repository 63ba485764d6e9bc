package system

import (
	"context"
	"testing"
	"time"

	"giveawaybot/internal/notifier"
	rtsup "giveawaybot/internal/runtime/supervisor"
	tasksched "giveawaybot/internal/task/scheduler"

	"github.com/stretchr/testify/assert"
)

type fakeSched struct{ snap tasksched.Snapshot }

func (f fakeSched) Snapshot() tasksched.Snapshot { return f.snap }

type fakeGiveaways struct{}

func (fakeGiveaways) Counts() (int, int) { return 3, 7 }

type fakeNotifier struct{}

func (fakeNotifier) Enabled() bool { return true }
func (fakeNotifier) Snapshot() []notifier.HistoryItem {
	return []notifier.HistoryItem{{Kind: "giveaway.created"}, {Kind: "giveaway.ended", Err: "boom"}}
}

func TestHealthText(t *testing.T) {
	sup := rtsup.New(context.Background())
	defer sup.Cancel()

	p := New(Deps{
		Scheduler: fakeSched{snap: tasksched.Snapshot{
			Pending: map[string]time.Time{"giveaway:a": time.Now().Add(time.Hour)},
			History: []tasksched.HistoryItem{{Name: "giveaway.sweep", Error: "x"}},
		}},
		Giveaways:   fakeGiveaways{},
		Notifier:    fakeNotifier{},
		Supervisors: func() map[string]*rtsup.Supervisor { return map[string]*rtsup.Supervisor{"app": sup} },
		BusDropped:  func() uint64 { return 4 },
	})

	txt := p.healthText(false)
	assert.Contains(t, txt, "active: 3")
	assert.Contains(t, txt, "ended:  7")
	assert.Contains(t, txt, "countdowns: 1")
	assert.Contains(t, txt, "recent runs: 1 (failed 1)")
	assert.Contains(t, txt, "recent: 2 (failed 1)")
	assert.Contains(t, txt, "bus dropped: 4")
	assert.Contains(t, txt, "app: active=0")
}

func TestHealthTextWithoutDeps(t *testing.T) {
	txt := New(Deps{}).healthText(true)
	assert.Contains(t, txt, "n/a")
	assert.Contains(t, txt, "disabled")
	assert.Contains(t, txt, "(none)")
}

func TestDurRel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "45s", durRel(45*time.Second))
	assert.Equal(t, "2m5s", durRel(125*time.Second))
	assert.Equal(t, "3h4m", durRel(-(3*time.Hour + 4*time.Minute)))
}
