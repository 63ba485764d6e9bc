package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "giveawaybot/pkg/logx"
)

// DefaultFilePath is used by the file driver when no path is configured.
const DefaultFilePath = "./giveawaybot_data"

// fileStore keeps <dir>/<name>.json per document.
//
// Save writes <name>.json.tmp, fsyncs it, renames it over the target and
// fsyncs the directory, so a crash leaves either the old or the new file.
type fileStore struct {
	log logx.Logger
	dir string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = DefaultFilePath
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// Leftover temp files belong to writes that never reached rename.
	if leftovers, _ := filepath.Glob(filepath.Join(dir, "*.json.tmp")); len(leftovers) > 0 {
		for _, p := range leftovers {
			_ = os.Remove(p)
		}
		log.Warn("removed interrupted writes", logx.Int("count", len(leftovers)), logx.String("dir", dir))
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *fileStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return b, err
}

func (s *fileStore) Save(ctx context.Context, name string, body []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	target := s.path(name)
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if d, err := os.Open(s.dir); err == nil {
		// Not every platform supports fsync on directories.
		_ = d.Sync()
		_ = d.Close()
	}
	s.log.Trace("document saved", logx.String("name", name), logx.Int("bytes", len(body)))
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
