package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate checks the values a running bot cannot recover from. requireToken
// is false for offline commands that never reach Telegram.
func Validate(cfg *Config, requireToken bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if requireToken && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required (or set "+EnvPrefix+"TELEGRAM_TOKEN)"))
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: must be a numeric chat id"))
		}
	}
	durations := map[string]string{
		"telegram.poll_timeout":          cfg.Telegram.PollTimeout,
		"giveaway.check_interval":        cfg.Giveaway.CheckInterval,
		"giveaway.max_duration":          cfg.Giveaway.MaxDuration,
		"giveaway.store_retry_base":      cfg.Giveaway.StoreRetryBase,
		"giveaway.store_retry_max_delay": cfg.Giveaway.StoreRetryMaxDelay,
		"scheduler.default_timeout":      cfg.Scheduler.DefaultTimeout,
		"storage.busy_timeout":           cfg.Storage.BusyTimeout,
	}
	if n := cfg.Notifier; n != nil {
		durations["notifier.retry_base"] = n.RetryBase
		durations["notifier.retry_max_delay"] = n.RetryMaxDelay
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			errs = append(errs, errors.New("notifier: counts must be >= 0"))
		}
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Giveaway.StoreRetryMax < 0 || cfg.Giveaway.ListLimit < 0 {
		errs = append(errs, errors.New("giveaway: counts must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr: required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	return errors.Join(errs...)
}
