package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"giveawaybot/internal/config"
	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/notifier"
	"giveawaybot/internal/observability/metrics"
	"giveawaybot/internal/plugin/builtin/giveaways"
	"giveawaybot/internal/plugin/builtin/leaderboard"
	"giveawaybot/internal/storage"
	"giveawaybot/internal/task/scheduler"
	logx "giveawaybot/pkg/logx"
)

const (
	defaultSweepSchedule = "@every 1m"
	sweepTask            = "giveaway.sweep"
	reconcileTask        = "points.reconcile"
)

// groupLogChat parses telegram.group_log; 0 means unset.
func groupLogChat(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID := groupLogChat(cfg)
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" && driver == "file" {
		path = storage.DefaultFilePath
	}
	if path == "" && driver == "sqlite" {
		return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
		},
	}, nil
}

func mapGiveawayConfig(cfg *config.Config) (giveaway.Config, error) {
	gc := cfg.Giveaway
	check, err := config.ParseDurationField("giveaway.check_interval", gc.CheckInterval)
	if err != nil {
		return giveaway.Config{}, err
	}
	maxDur, err := config.ParseDurationField("giveaway.max_duration", gc.MaxDuration)
	if err != nil {
		return giveaway.Config{}, err
	}
	base, err := config.ParseDurationField("giveaway.store_retry_base", gc.StoreRetryBase)
	if err != nil {
		return giveaway.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("giveaway.store_retry_max_delay", gc.StoreRetryMaxDelay)
	if err != nil {
		return giveaway.Config{}, err
	}
	return giveaway.Config{
		CheckInterval:      check,
		MaxDuration:        maxDur,
		StoreRetryMax:      gc.StoreRetryMax,
		StoreRetryBase:     base,
		StoreRetryMaxDelay: maxDelay,
	}, nil
}

// sweepSchedule returns "" when the sweep is switched off.
func sweepSchedule(cfg *config.Config) string {
	s := strings.TrimSpace(cfg.Giveaway.SweepSchedule)
	switch strings.ToLower(s) {
	case "":
		return defaultSweepSchedule
	case "off", "none":
		return ""
	}
	return s
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	hist := cfg.Scheduler.HistorySize
	if hist <= 0 {
		hist = 100
	}
	return scheduler.Config{
		Timezone:       cfg.Scheduler.Timezone,
		DefaultTimeout: timeout,
		HistorySize:    hist,
	}, nil
}

// location resolves scheduler.timezone for rendering; unknown zones fall
// back to UTC (Validate rejects them on reload).
func location(cfg *config.Config) *time.Location {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// mapNotifierConfig treats a missing section as enabled with defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       nc.Enabled,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func mapMetricsConfig(cfg *config.Config) metrics.ServerConfig {
	return metrics.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Pprof:   cfg.Metrics.Pprof,
		Token:   cfg.Metrics.Token,
	}
}

func mapGiveawaysPlugin(cfg *config.Config) giveaways.Config {
	return giveaways.Config{ListLimit: cfg.Giveaway.ListLimit}
}

func mapLeaderboardPlugin(cfg *config.Config) leaderboard.Config {
	return leaderboard.Config{TopLimit: cfg.Points.TopLimit}
}

// validate is the hot reload gate: everything that would be rejected at
// startup is rejected here too.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg, true); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if s := sweepSchedule(cfg); s != "" {
		if err := scheduler.ValidateSchedule(s); err != nil {
			return fmt.Errorf("giveaway.sweep_schedule: %w", err)
		}
	}
	if s := strings.TrimSpace(cfg.Points.ReconcileSchedule); s != "" {
		if err := scheduler.ValidateSchedule(s); err != nil {
			return fmt.Errorf("points.reconcile_schedule: %w", err)
		}
	}
	if _, err := mapGiveawayConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	_, err := mapStorageConfig(cfg)
	return err
}
