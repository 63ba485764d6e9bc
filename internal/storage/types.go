package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotExist is returned by Load when the document was never saved.
	ErrNotExist = errors.New("storage: document does not exist")
	ErrClosed   = errors.New("storage: store closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per document under Path (default)
//   - "sqlite": documents table in a SQLite file (build tag sqlite)
//   - "redis": one key per document
//   - "memory": process-local, for tests and dry runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only

	Redis RedisConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store loads and atomically replaces named documents.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, body []byte) error
	Close() error
}
