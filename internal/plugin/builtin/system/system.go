// Package system provides operator commands: liveness, uptime, runtime info
// and scheduler state.
package system

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"giveawaybot/internal/notifier"
	rtsup "giveawaybot/internal/runtime/supervisor"
	tasksched "giveawaybot/internal/task/scheduler"
	"giveawaybot/internal/transport/telegram/router"
	"giveawaybot/pkg/tgui"
)

type Scheduler interface {
	Snapshot() tasksched.Snapshot
}

type Giveaways interface {
	Counts() (active, ended int)
}

type Notifier interface {
	Enabled() bool
	Snapshot() []notifier.HistoryItem
}

// Deps are optional; nil parts are reported as unavailable.
type Deps struct {
	Scheduler   Scheduler
	Giveaways   Giveaways
	Notifier    Notifier
	Supervisors func() map[string]*rtsup.Supervisor
	// BusDropped reports event deliveries skipped by full subscribers.
	BusDropped func() uint64
}

type Plugin struct {
	deps      Deps
	startedAt time.Time
}

func New(deps Deps) *Plugin    { return &Plugin{deps: deps, startedAt: time.Now()} }
func (p *Plugin) Name() string { return "system" }

func (p *Plugin) Callbacks() []router.CallbackRoute { return nil }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "ping",
			Description: "check the bot is alive",
			Usage:       "/ping",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Name:        "uptime",
			Aliases:     []string{"up"},
			Description: "show how long the bot has been running",
			Usage:       "/uptime",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "uptime: "+durRel(time.Since(p.startedAt)))
			},
		},
		{
			Name:        "health",
			Aliases:     []string{"status"},
			Description: "show component health",
			Usage:       "/health [sup]",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdHealth,
		},
		{
			Name:        "sysinfo",
			Description: "show runtime info",
			Usage:       "/sysinfo",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdSysinfo,
		},
		{
			Name:        "sched",
			Aliases:     []string{"tasks"},
			Description: "list scheduled tasks",
			Usage:       "/sched",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdSched,
		},
	}
}

func (p *Plugin) cmdSysinfo(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	bi, _ := debug.ReadBuildInfo()
	mod := ""
	if bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}

	msg := tgui.New().
		Title("🧠", "sysinfo").
		KV("go", runtime.Version()).
		KV("module", mod).
		KV("goroutines", fmt.Sprintf("%d", runtime.NumGoroutine())).
		KV("mem_alloc", fmtBytes(m.Alloc)).
		KV("mem_sys", fmtBytes(m.Sys)).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdSched(ctx context.Context, req *router.Request) error {
	s := p.deps.Scheduler
	if s == nil {
		return req.Reply(ctx, "scheduler is unavailable")
	}
	snap := s.Snapshot()
	if len(snap.Schedules) == 0 && len(snap.Pending) == 0 {
		return req.Reply(ctx, "no scheduled tasks")
	}

	now := time.Now()
	lines := make([]string, 0, len(snap.Schedules)+8)
	lines = append(lines, "⏱ scheduled tasks ("+snap.Timezone+"):")
	for _, t := range snap.Schedules {
		next := "-"
		if !t.Next.IsZero() {
			next = t.Next.Format("2006-01-02 15:04:05")
			if t.Next.After(now) {
				next += " (in " + durRel(t.Next.Sub(now)) + ")"
			}
		}
		timeout := "default"
		if t.Timeout > 0 {
			timeout = t.Timeout.String()
		}
		lines = append(lines, fmt.Sprintf("- %s: spec=%s, next=%s, timeout=%s", t.Name, t.Spec, next, timeout))
	}

	if len(snap.Pending) > 0 {
		names := make([]string, 0, len(snap.Pending))
		for name := range snap.Pending {
			names = append(names, name)
		}
		slices.SortFunc(names, func(a, b string) int { return snap.Pending[a].Compare(snap.Pending[b]) })
		lines = append(lines, fmt.Sprintf("⏳ countdowns: %d", len(names)))
		for _, name := range names[:min(len(names), 5)] {
			lines = append(lines, fmt.Sprintf("- %s in %s", name, durRel(snap.Pending[name].Sub(now))))
		}
	}

	if n := len(snap.History); n > 0 {
		it := snap.History[n-1]
		status := "ok"
		if it.Error != "" {
			status = "fail: " + shorten(it.Error, 120)
		}
		lines = append(lines, fmt.Sprintf("last run: %s (%s) %s ago, dur=%s", it.Name, status, durRel(time.Since(it.Started)), it.Duration))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func shorten(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
