// Package app wires configuration, storage, the giveaway engine, the points
// ledger and the Telegram surfaces into one supervised process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giveawaybot/internal/config"
	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/notifier"
	"giveawaybot/internal/observability/metrics"
	"giveawaybot/internal/plugin"
	"giveawaybot/internal/plugin/builtin/giveaways"
	"giveawaybot/internal/plugin/builtin/leaderboard"
	"giveawaybot/internal/plugin/builtin/system"
	"giveawaybot/internal/points"
	rtsup "giveawaybot/internal/runtime/supervisor"
	"giveawaybot/internal/storage"
	"giveawaybot/internal/task/scheduler"
	kit "giveawaybot/internal/transport"
	telegram "giveawaybot/internal/transport/telegram/adapter"
	"giveawaybot/internal/transport/telegram/router"
	logx "giveawaybot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	engine  *giveaway.Engine
	ledger  *points.Ledger
	granter *leaderboard.ChatGranter
	sched   *scheduler.Service
	notif   *notifier.Service
	metrics *metrics.Metrics
	mserver *metrics.Server

	cmdm        *router.CommandManager
	giveawaysP  *giveaways.Plugin
	leaderboard *leaderboard.Plugin

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing talks to the
// network or the store until Start, except the Telegram client handshake.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	// the chat sink gets its sender once the adapter exists
	logs, log := logx.New(mapLogConfig(cfg), nil)

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	logs.SetSender(func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, nil)
		return err
	})

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		store:   store,
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	if err := a.build(cfg); err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	log := a.logs.Logger()

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), a.bus)

	gcfg, err := mapGiveawayConfig(cfg)
	if err != nil {
		return err
	}
	a.engine = giveaway.New(gcfg, a.store, a.sched,
		giveaway.WithLogger(log.With(logx.String("comp", "engine"))),
		giveaway.WithBus(a.bus),
	)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, a.adapter, a.engine, log.With(logx.String("comp", "notifier")), a.bus,
		notifier.WithLocation(location(cfg)))
	names := a.notif.Names()

	a.granter = leaderboard.NewChatGranter(a.adapter, names, cfg.Points.AnnounceChatID)
	a.ledger = points.New(a.store, a.granter, a.bus, log.With(logx.String("comp", "points")))

	a.metrics = metrics.New(metrics.Gauges{
		Giveaways:  a.engine.Counts,
		BusDropped: a.bus.Dropped,
	})
	a.mserver = metrics.NewServer(mapMetricsConfig(cfg), a.metrics, log.With(logx.String("comp", "metrics")))

	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")), a.adapter, cfg.Telegram.OwnerUserIDs)
	a.cmdm.SetErrorRenderer(plugin.ErrorText)
	a.giveawaysP = giveaways.New(a.engine, names, mapGiveawaysPlugin(cfg))
	a.leaderboard = leaderboard.New(a.ledger, names, mapLeaderboardPlugin(cfg))
	return nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings the components up in dependency order. The engine recovers
// before the adapter starts polling, so no command can reach it early; the
// notifier starts first so recovery announcements are delivered.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	a.sup.Go("metrics.collect", func(c context.Context) error {
		return a.metrics.Run(c, a.bus)
	})
	a.mserver.Start(run)
	a.notif.Start(run)
	a.sched.Start(run)

	rep, err := a.engine.Recover(run)
	if err != nil {
		return fmt.Errorf("recover giveaways: %w", err)
	}
	if rep.Deferred > 0 {
		a.log.Warn("recovered giveaways not saved yet; sweep will retry", logx.Int("count", rep.Deferred))
	}
	if err := a.ledger.Load(run); err != nil {
		return fmt.Errorf("load points: %w", err)
	}
	a.registerTasks(cfg)

	cmds, cbs := plugin.Registry(a.notif.Names(), a.plugins()...)
	a.cmdm.SetRegistry(run, cmds, cbs)
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.log.Enabled(logx.LevelDebug) {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) plugins() []plugin.Plugin {
	sys := system.New(system.Deps{
		Scheduler:   a.sched,
		Giveaways:   a.engine,
		Notifier:    a.notif,
		Supervisors: a.supervisors,
		BusDropped:  a.bus.Dropped,
	})
	return []plugin.Plugin{a.giveawaysP, a.leaderboard, sys}
}

func (a *App) supervisors() map[string]*rtsup.Supervisor {
	out := map[string]*rtsup.Supervisor{}
	add := func(name string, s *rtsup.Supervisor) {
		if s != nil {
			out[name] = s
		}
	}
	add("app", a.sup)
	add("telegram.adapter", a.adapter.Supervisor())
	add("notifier", a.notif.Supervisor())
	add("metrics", a.mserver.Supervisor())
	return out
}

// registerTasks upserts the periodic jobs for cfg. Names are stable so a
// reload replaces rather than duplicates them.
func (a *App) registerTasks(cfg *config.Config) {
	if s := sweepSchedule(cfg); s == "" {
		a.sched.Remove(sweepTask)
	} else if _, err := a.sched.AddSchedule(sweepTask, s, 0, a.sweep); err != nil {
		a.log.Error("sweep schedule rejected", logx.String("schedule", s), logx.Err(err))
	}

	if s := cfg.Points.ReconcileSchedule; s == "" {
		a.sched.Remove(reconcileTask)
	} else if _, err := a.sched.AddSchedule(reconcileTask, s, 0, a.reconcile); err != nil {
		a.log.Error("reconcile schedule rejected", logx.String("schedule", s), logx.Err(err))
	}
}

func (a *App) sweep(ctx context.Context) error {
	n, err := a.engine.Sweep(ctx)
	if n > 0 {
		a.log.Info("overdue giveaways finalized by sweep", logx.Int("count", n))
	}
	return err
}

func (a *App) reconcile(ctx context.Context) error {
	if n := a.ledger.CheckRoles(ctx); n > 0 {
		a.log.Info("role rewards granted by reconcile", logx.Int("count", n))
	}
	return nil
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.mserver.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
