package system

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	rtsup "giveawaybot/internal/runtime/supervisor"
	"giveawaybot/internal/transport/telegram/router"
	"giveawaybot/pkg/tgui"
)

func (p *Plugin) cmdHealth(ctx context.Context, req *router.Request) error {
	detail := len(req.Args) > 0 && (strings.EqualFold(req.Args[0], "sup") || strings.EqualFold(req.Args[0], "detail"))
	msg := tgui.New().
		ParseMode("").
		Title("🩺", "health").
		Blank().
		RawLine(p.healthText(detail)).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// healthText renders plain text so Telegram parse errors cannot hide it.
func (p *Plugin) healthText(detail bool) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var b strings.Builder
	fmt.Fprintf(&b, "uptime: %s\n", durRel(time.Since(p.startedAt)))
	fmt.Fprintf(&b, "goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "heap: %s (gc=%d)\n\n", fmtBytes(m.HeapAlloc), m.NumGC)

	b.WriteString("🎁 giveaways\n")
	if g := p.deps.Giveaways; g != nil {
		active, ended := g.Counts()
		fmt.Fprintf(&b, "  active: %d\n  ended:  %d\n", active, ended)
	} else {
		b.WriteString("  n/a\n")
	}

	b.WriteString("\n⏱ scheduler\n")
	if s := p.deps.Scheduler; s != nil {
		snap := s.Snapshot()
		fmt.Fprintf(&b, "  schedules:  %d\n  countdowns: %d\n", len(snap.Schedules), len(snap.Pending))
		failed := 0
		for _, it := range snap.History {
			if it.Error != "" {
				failed++
			}
		}
		fmt.Fprintf(&b, "  recent runs: %d (failed %d)\n", len(snap.History), failed)
	} else {
		b.WriteString("  n/a\n")
	}

	b.WriteString("\n📣 notifier\n")
	if n := p.deps.Notifier; n != nil && n.Enabled() {
		hist := n.Snapshot()
		failed := 0
		for _, it := range hist {
			if it.Err != "" {
				failed++
			}
		}
		fmt.Fprintf(&b, "  recent: %d (failed %d)\n", len(hist), failed)
	} else {
		b.WriteString("  disabled\n")
	}
	if p.deps.BusDropped != nil {
		fmt.Fprintf(&b, "  bus dropped: %d\n", p.deps.BusDropped())
	}

	sups := map[string]*rtsup.Supervisor{}
	if p.deps.Supervisors != nil {
		sups = p.deps.Supervisors()
	}
	names := make([]string, 0, len(sups))
	for name, s := range sups {
		if s != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	b.WriteString("\n🧵 supervisor\n")
	if len(names) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, name := range names {
		snap := sups[name].Snapshot()
		active := 0
		var restarts, panics uint64
		for _, g := range snap {
			active += g.Active
			restarts += g.Restarts
			panics += g.Panics
		}
		fmt.Fprintf(&b, "  %s: active=%d restarts=%d panics=%d\n", name, active, restarts, panics)
		if detail {
			writeSupDetails(&b, snap, 12)
		}
	}
	return b.String()
}

func writeSupDetails(b *strings.Builder, snap []rtsup.GoroutineStats, limit int) {
	n := 0
	for _, g := range snap {
		if g.Active == 0 && g.Started == 0 {
			continue
		}
		line := fmt.Sprintf("    - %s active=%d started=%d restarts=%d panics=%d", g.Name, g.Active, g.Started, g.Restarts, g.Panics)
		if g.LastErr != "" {
			line += ", last_err=" + shorten(g.LastErr, 96)
		}
		if !g.LastStop.IsZero() {
			line += fmt.Sprintf(", last_stop=%s ago", durRel(time.Since(g.LastStop)))
		}
		b.WriteString(line + "\n")
		n++
		if n >= limit {
			break
		}
	}
	if n == 0 {
		b.WriteString("    (no data)\n")
	}
}
