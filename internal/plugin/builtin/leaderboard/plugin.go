// Package leaderboard exposes the points ledger as chat commands.
package leaderboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"giveawaybot/internal/plugin"
	"giveawaybot/internal/points"
	"giveawaybot/internal/transport/telegram/router"
	"giveawaybot/pkg/tgui"
)

// Ledger is the part of *points.Ledger the commands use.
type Ledger interface {
	Add(ctx context.Context, user, amount int64) (int64, []points.Reward, error)
	Remove(ctx context.Context, user, amount int64) (int64, error)
	Score(user int64) int64
	SetReward(ctx context.Context, role string, threshold int64) error
	RemoveReward(ctx context.Context, role string) error
	Rewards() []points.Reward
	Top(n int) []points.Entry
	CheckRoles(ctx context.Context) int
}

// Directory resolves user IDs to display names.
type Directory interface {
	Name(id int64) string
}

type Config struct {
	TopLimit int
}

type Plugin struct {
	ledger Ledger
	names  Directory

	mu  sync.RWMutex
	cfg Config
}

func New(ledger Ledger, names Directory, cfg Config) *Plugin {
	p := &Plugin{ledger: ledger, names: names}
	p.Apply(cfg)
	return p
}

func (p *Plugin) Name() string { return "leaderboard" }

func (p *Plugin) Apply(cfg Config) {
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = 10
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Plugin) Callbacks() []router.CallbackRoute { return nil }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{Name: "add", Description: "add points to a user", Usage: "/add <user_id> <amount>", Access: router.AccessOwnerOnly, Timeout: 20 * time.Second, Handle: p.cmdAdd},
		{Name: "remove", Description: "remove points from a user", Usage: "/remove <user_id> <amount>", Access: router.AccessOwnerOnly, Timeout: 10 * time.Second, Handle: p.cmdRemove},
		{Name: "setreward", Description: "set the points needed for a role", Usage: "/setreward <role> <threshold>", Access: router.AccessOwnerOnly, Handle: p.cmdSetReward},
		{Name: "delreward", Description: "remove a role reward", Usage: "/delreward <role>", Access: router.AccessOwnerOnly, Handle: p.cmdDelReward},
		{Name: "rewards", Description: "list role rewards", Usage: "/rewards", Handle: p.cmdRewards},
		{Name: "top", Aliases: []string{"leaderboard"}, Description: "show the top scores", Usage: "/top", Handle: p.cmdTop},
		{Name: "points", Description: "show a score", Usage: "/points [user_id]", Handle: p.cmdPoints},
		{Name: "checkroles", Description: "grant every missing role reward", Usage: "/checkroles", Access: router.AccessOwnerOnly, Timeout: 2 * time.Minute, Handle: p.cmdCheckRoles},
	}
}

func userAmount(args []string, usage string) (int64, int64, error) {
	if len(args) != 2 {
		return 0, 0, plugin.UsageError(usage)
	}
	user, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, plugin.UsageError(usage)
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, plugin.UsageError(usage)
	}
	return user, amount, nil
}

func (p *Plugin) cmdAdd(ctx context.Context, req *router.Request) error {
	user, amount, err := userAmount(req.Args, "/add <user_id> <amount>")
	if err != nil {
		return err
	}
	score, granted, err := p.ledger.Add(ctx, user, amount)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("➕ %s now has %d points", p.names.Name(user), score)
	if len(granted) > 0 {
		roles := make([]string, 0, len(granted))
		for _, r := range granted {
			roles = append(roles, r.Role)
		}
		msg += "\nnew roles: " + strings.Join(roles, ", ")
	}
	return req.Reply(ctx, msg)
}

func (p *Plugin) cmdRemove(ctx context.Context, req *router.Request) error {
	user, amount, err := userAmount(req.Args, "/remove <user_id> <amount>")
	if err != nil {
		return err
	}
	score, err := p.ledger.Remove(ctx, user, amount)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("➖ %s now has %d points", p.names.Name(user), score))
}

func (p *Plugin) cmdSetReward(ctx context.Context, req *router.Request) error {
	const usage = "/setreward <role> <threshold>"
	if len(req.Args) < 2 {
		return plugin.UsageError(usage)
	}
	last := len(req.Args) - 1
	threshold, err := strconv.ParseInt(req.Args[last], 10, 64)
	if err != nil {
		return plugin.UsageError(usage)
	}
	role := strings.Join(req.Args[:last], " ")
	if err := p.ledger.SetReward(ctx, role, threshold); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🏅 %s unlocks at %d points", role, threshold))
}

func (p *Plugin) cmdDelReward(ctx context.Context, req *router.Request) error {
	role := strings.TrimSpace(req.Text)
	if role == "" {
		return plugin.UsageError("/delreward <role>")
	}
	if err := p.ledger.RemoveReward(ctx, role); err != nil {
		return err
	}
	return req.Reply(ctx, "🗑 reward "+role+" removed")
}

func (p *Plugin) cmdRewards(ctx context.Context, req *router.Request) error {
	rewards := p.ledger.Rewards()
	if len(rewards) == 0 {
		return req.Reply(ctx, "no role rewards configured")
	}
	b := tgui.New().Title("🏅", "Role rewards")
	for _, r := range rewards {
		b.KV(r.Role, fmt.Sprintf("%d points", r.Threshold))
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdTop(ctx context.Context, req *router.Request) error {
	p.mu.RLock()
	n := p.cfg.TopLimit
	p.mu.RUnlock()

	top := p.ledger.Top(n)
	if len(top) == 0 {
		return req.Reply(ctx, "nobody has points yet")
	}
	b := tgui.New().Title("🏆", "Leaderboard")
	for i, e := range top {
		b.HTML(tgui.Esc(fmt.Sprintf("%d. ", i+1)) + tgui.Mention(p.names.Name(e.UserID), e.UserID) + tgui.Esc(fmt.Sprintf(" · %d", e.Score)))
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdPoints(ctx context.Context, req *router.Request) error {
	user := req.FromID
	if len(req.Args) > 0 {
		id, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil {
			return plugin.UsageError("/points [user_id]")
		}
		user = id
	}
	return req.Reply(ctx, fmt.Sprintf("%s has %d points", p.names.Name(user), p.ledger.Score(user)))
}

func (p *Plugin) cmdCheckRoles(ctx context.Context, req *router.Request) error {
	n := p.ledger.CheckRoles(ctx)
	return req.Reply(ctx, fmt.Sprintf("✅ role check done, %d role(s) granted", n))
}
