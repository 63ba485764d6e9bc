package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GIVEAWAYBOT_"

// envOverlay holds the values that may come from the environment instead of
// the config file. Unset variables leave the file values alone.
type envOverlay struct {
	TelegramToken string  `env:"TELEGRAM_TOKEN"`
	OwnerIDs      []int64 `env:"OWNER_IDS" envSeparator:","`
	StorageDriver string  `env:"STORAGE_DRIVER"`
	StoragePath   string  `env:"STORAGE_PATH"`
	RedisAddr     string  `env:"REDIS_ADDR"`
	RedisPassword string  `env:"REDIS_PASSWORD"`
	LogLevel      string  `env:"LOG_LEVEL"`
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored and existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays GIVEAWAYBOT_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverlay
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if o.TelegramToken != "" {
		cfg.Telegram.Token = o.TelegramToken
	}
	if len(o.OwnerIDs) > 0 {
		cfg.Telegram.OwnerUserIDs = o.OwnerIDs
	}
	if o.StorageDriver != "" {
		cfg.Storage.Driver = o.StorageDriver
	}
	if o.StoragePath != "" {
		cfg.Storage.Path = o.StoragePath
	}
	if o.RedisAddr != "" {
		cfg.Storage.Redis.Addr = o.RedisAddr
	}
	if o.RedisPassword != "" {
		cfg.Storage.Redis.Password = o.RedisPassword
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return nil
}
