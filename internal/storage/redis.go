package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "giveawaybot/pkg/logx"
)

// redisStore keeps each document under <prefix><name>. A single SET
// replaces the value atomically.
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = "giveawaybot:"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Info("redis store connected", logx.String("addr", addr), logx.Int("db", cfg.Redis.DB))
	return &redisStore{rdb: rdb, prefix: prefix, log: log}, nil
}

func (s *redisStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	b, err := s.rdb.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotExist
	}
	return b, err
}

func (s *redisStore) Save(ctx context.Context, name string, body []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+name, body, 0).Err()
}

func (s *redisStore) Close() error { return s.rdb.Close() }
