package giveaway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	at  time.Time
	job func(ctx context.Context) error
}

// fakeTimers records scheduled countdowns; fire runs the ones that are due.
type fakeTimers struct {
	mu   sync.Mutex
	jobs map[string]fakeTimer
}

func newFakeTimers() *fakeTimers { return &fakeTimers{jobs: map[string]fakeTimer{}} }

func (f *fakeTimers) AddOnce(name string, at time.Time, _ time.Duration, job func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	f.jobs[name] = fakeTimer{at: at, job: job}
	f.mu.Unlock()
	return name, nil
}

func (f *fakeTimers) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[name]
	delete(f.jobs, name)
	return ok
}

func (f *fakeTimers) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[name]
	return ok
}

func (f *fakeTimers) At(name string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[name].at
}

// fire runs every job due at now, the way the scheduler would.
func (f *fakeTimers) fire(t *testing.T, now time.Time) {
	t.Helper()
	f.mu.Lock()
	var due []fakeTimer
	for name, j := range f.jobs {
		if !j.at.After(now) {
			due = append(due, j)
			delete(f.jobs, name)
		}
	}
	f.mu.Unlock()
	for _, j := range due {
		if err := j.job(context.Background()); err != nil {
			t.Fatalf("timer job: %v", err)
		}
	}
}

// flakyStore fails the next n saves.
type flakyStore struct {
	storage.Store
	failures atomic.Int32
	saves    atomic.Int32
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Save(ctx context.Context, name string, body []byte) error {
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return errDiskFull
	}
	s.saves.Add(1)
	return s.Store.Save(ctx, name, body)
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	timers *fakeTimers
	store  *flakyStore
	events <-chan eventbus.Event
}

func newHarness(t *testing.T, seedRecords map[string]*Record) *harness {
	t.Helper()
	st := &flakyStore{Store: storage.NewMemory()}
	if seedRecords != nil {
		body, err := encodeRecords(seedRecords)
		if err != nil {
			t.Fatalf("encode seed: %v", err)
		}
		if err := st.Store.Save(context.Background(), DocumentName, body); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	h := &harness{clock: newFakeClock(), timers: newFakeTimers(), store: st}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(256, "giveaway.")
	t.Cleanup(unsub)
	h.events = events
	var seq atomic.Int32
	h.engine = New(Config{
		CheckInterval:      30 * time.Second,
		StoreRetryMax:      3,
		StoreRetryBase:     time.Millisecond,
		StoreRetryMaxDelay: 2 * time.Millisecond,
	}, st, h.timers,
		WithBus(bus),
		WithClock(h.clock.Now),
		WithSelector(NewSeededSelector([32]byte{7})),
		WithIDGenerator(func() string { return "gw" + string(rune('a'+seq.Add(1)-1)) + "0000" }),
	)
	return h
}

func (h *harness) recover(t *testing.T) RecoveryReport {
	t.Helper()
	rep, err := h.engine.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	return rep
}

// drain returns the event types published so far.
func (h *harness) drain() []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-h.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func countType(events []eventbus.Event, typ string) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (h *harness) stored(t *testing.T) map[string]*Record {
	t.Helper()
	recs, _, err := LoadRecords(context.Background(), h.store.Store)
	if err != nil {
		t.Fatalf("load stored: %v", err)
	}
	return recs
}
