package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Giveaway  GiveawayConfig  `json:"giveaway"`
	Points    PointsConfig    `json:"points"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat ID receiving log lines when logging.telegram is enabled.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// GiveawayConfig tunes the lifecycle engine. Durations are Go duration strings.
//
// Defaults: check_interval "30s", sweep_schedule "@every 1m", store_retry_max 5,
// store_retry_base "200ms", store_retry_max_delay "5s", list_limit 20.
type GiveawayConfig struct {
	CheckInterval      string `json:"check_interval,omitempty"`
	MaxDuration        string `json:"max_duration,omitempty"`
	SweepSchedule      string `json:"sweep_schedule,omitempty"`
	StoreRetryMax      int    `json:"store_retry_max,omitempty"`
	StoreRetryBase     string `json:"store_retry_base,omitempty"`
	StoreRetryMaxDelay string `json:"store_retry_max_delay,omitempty"`
	ListLimit          int    `json:"list_limit,omitempty"`
}

type PointsConfig struct {
	// ReconcileSchedule runs the role grant check; empty disables it.
	ReconcileSchedule string `json:"reconcile_schedule,omitempty"`
	// AnnounceChatID receives role grant announcements; 0 disables them.
	AnnounceChatID int64 `json:"announce_chat_id,omitempty"`
	TopLimit       int   `json:"top_limit,omitempty"`
}

// SchedulerConfig tunes the timer service. It always runs: giveaway
// countdowns live on it.
type SchedulerConfig struct {
	// DefaultTimeout is a Go duration string. "0s" disables the default.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// NotifierConfig controls the outbound chat pipeline. When the section is
// omitted the notifier runs with its defaults.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig selects the document store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./giveawaybot_data" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint. Prefer a loopback address.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9090"
	Path    string `json:"path,omitempty"` // default "/metrics"
	// Pprof also mounts /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
	// Token is required for a non-loopback addr.
	Token string `json:"token,omitempty"`
}
