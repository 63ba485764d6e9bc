// Package giveaways exposes the giveaway engine as chat commands and the
// Join / Participants / My chances buttons.
package giveaways

import (
	"context"
	"sync"
	"time"

	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/notifier"
	"giveawaybot/internal/transport/telegram/router"
)

// Engine is the part of *giveaway.Engine the plugin drives.
type Engine interface {
	Create(ctx context.Context, prize string, winnerCount int, d time.Duration, host giveaway.Host) (*giveaway.Record, error)
	CreateUntil(ctx context.Context, prize string, winnerCount int, end time.Time, host giveaway.Host) (*giveaway.Record, error)
	ToggleParticipation(ctx context.Context, id string, user int64) (bool, error)
	Finalize(ctx context.Context, id string) ([]int64, error)
	Reroll(ctx context.Context, id string) ([]int64, error)
	Delete(ctx context.Context, id string) error
	Get(id string) (*giveaway.Record, error)
	List(activeOnly bool) []*giveaway.Record
	Stats(id string, user int64) (giveaway.Stats, error)
}

// Directory resolves user IDs to display names.
type Directory interface {
	Name(id int64) string
}

type Config struct {
	// ListLimit caps /glist output.
	ListLimit int
}

const participantsShown = 20

type Plugin struct {
	engine Engine
	names  Directory
	now    func() time.Time

	mu  sync.RWMutex
	cfg Config
}

func New(engine Engine, names Directory, cfg Config) *Plugin {
	p := &Plugin{engine: engine, names: names, now: time.Now}
	p.Apply(cfg)
	return p
}

func (p *Plugin) Name() string { return "giveaways" }

func (p *Plugin) Apply(cfg Config) {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 25
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Plugin) cfgSnapshot() Config {
	p.mu.RLock()
	c := p.cfg
	p.mu.RUnlock()
	return c
}

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "giveaway",
			Aliases:     []string{"gstart"},
			Description: "start a giveaway",
			Usage:       "/giveaway <duration|at <time>> <winners> <prize>",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      p.cmdCreate,
		},
		{
			Name:        "gend",
			Description: "end a giveaway now",
			Usage:       "/gend <id>",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      p.cmdEnd,
		},
		{
			Name:        "gdelete",
			Description: "delete a giveaway and its message",
			Usage:       "/gdelete <id>",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      p.cmdDelete,
		},
		{
			Name:        "greroll",
			Description: "draw new winners for an ended giveaway",
			Usage:       "/greroll <id>",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      p.cmdReroll,
		},
		{
			Name:        "glist",
			Description: "list running giveaways",
			Usage:       "/glist",
			Access:      router.AccessEveryone,
			Handle:      p.cmdList,
		},
	}
}

func (p *Plugin) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: notifier.CallbackPrefix, Action: notifier.ActionJoin, Timeout: 10 * time.Second, Handle: p.cbJoin},
		{Prefix: notifier.CallbackPrefix, Action: notifier.ActionList, Handle: p.cbList},
		{Prefix: notifier.CallbackPrefix, Action: notifier.ActionLuck, Handle: p.cbLuck},
	}
}
