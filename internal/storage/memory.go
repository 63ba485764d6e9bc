package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	closed bool
}

// NewMemory returns a process-local Store. Saved bodies are copied.
func NewMemory() Store {
	return &memoryStore{docs: map[string][]byte{}}
}

func (m *memoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	b, ok := m.docs[name]
	if !ok {
		return nil, ErrNotExist
	}
	return append([]byte(nil), b...), nil
}

func (m *memoryStore) Save(ctx context.Context, name string, body []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.docs[name] = append([]byte(nil), body...)
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
