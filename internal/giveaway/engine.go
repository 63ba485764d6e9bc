package giveaway

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/storage"
	logx "giveawaybot/pkg/logx"
)

var ErrNotReady = kindError(ErrInvalidState, "giveaways are still being recovered")

type Config struct {
	// CheckInterval bounds how long a countdown sleeps before re-checking
	// the deadline against the wall clock.
	CheckInterval time.Duration
	// MaxDuration rejects drawings that run longer (0 disables the cap).
	MaxDuration time.Duration

	SaveTimeout        time.Duration
	StoreRetryMax      int
	StoreRetryBase     time.Duration
	StoreRetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 5 * time.Second
	}
	if c.StoreRetryMax <= 0 {
		c.StoreRetryMax = 5
	}
	if c.StoreRetryBase <= 0 {
		c.StoreRetryBase = 200 * time.Millisecond
	}
	if c.StoreRetryMaxDelay <= 0 {
		c.StoreRetryMaxDelay = 5 * time.Second
	}
	return c
}

// Timers is the countdown registry. AddOnce upserts by name and Remove
// cancels; a removed timer never runs its job.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

type Option func(*Engine)

func WithLogger(log logx.Logger) Option     { return func(e *Engine) { e.log = log } }
func WithBus(bus eventbus.Bus) Option       { return func(e *Engine) { e.bus = bus } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithSelector(s *Selector) Option       { return func(e *Engine) { e.sel = s } }
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// Engine owns every giveaway record, its countdown and its persistence.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*Record
	ready   bool
	// unsaved holds finalized ids whose save failed, with their recovered flag.
	unsaved map[string]bool
	// saving holds finalized ids whose save is in progress.
	saving map[string]bool

	store  storage.Store
	timers Timers
	bus    eventbus.Bus
	sel    *Selector
	log    logx.Logger
	now    func() time.Time
	newID  func() string
}

func New(cfg Config, store storage.Store, timers Timers, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.withDefaults(),
		records: map[string]*Record{},
		unsaved: map[string]bool{},
		saving:  map[string]bool{},
		store:   store,
		timers:  timers,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	if e.sel == nil {
		e.sel = NewSelector()
	}
	return e
}

// Apply swaps tunables on config reload. Running countdowns pick up the new
// check interval on their next tick.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

// Create opens a drawing that ends after d.
func (e *Engine) Create(ctx context.Context, prize string, winnerCount int, d time.Duration, host Host) (*Record, error) {
	if d < time.Second {
		return nil, ErrInvalidDuration
	}
	return e.CreateUntil(ctx, prize, winnerCount, e.now().Add(d), host)
}

// CreateUntil opens a drawing that ends at end.
func (e *Engine) CreateUntil(ctx context.Context, prize string, winnerCount int, end time.Time, host Host) (*Record, error) {
	prize, err := validatePrize(prize)
	if err != nil {
		return nil, err
	}
	if winnerCount < 1 {
		return nil, ErrInvalidWinnerCount
	}

	e.mu.Lock()
	now := e.now()
	if !end.After(now) || (e.cfg.MaxDuration > 0 && end.Sub(now) > e.cfg.MaxDuration) {
		e.mu.Unlock()
		return nil, ErrInvalidDuration
	}
	if !e.ready {
		e.mu.Unlock()
		return nil, ErrNotReady
	}
	id, err := e.uniqueIDLocked()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	rec := &Record{
		ID:           id,
		Prize:        prize,
		WinnerCount:  winnerCount,
		Participants: []int64{},
		EndTime:      end.Unix(),
		HostID:       host.UserID,
		HostName:     host.Name,
		ChatID:       host.ChatID,
		ThreadID:     host.ThreadID,
		Flavor:       pickFlavor(),
		CreatedAt:    now.Unix(),
	}
	e.records[id] = rec
	if err := e.saveLocked(ctx); err != nil {
		delete(e.records, id)
		e.mu.Unlock()
		return nil, storeErr("create", err)
	}
	e.armLocked(rec)
	snap := rec.Clone()
	e.mu.Unlock()

	e.log.Info("giveaway created",
		logx.String("id", id),
		logx.Int("winners", winnerCount),
		logx.Time("end", end),
		logx.Int64("host", host.UserID),
	)
	e.publish(EventCreated, Event{Record: snap})
	return snap.Clone(), nil
}

func (e *Engine) uniqueIDLocked() (string, error) {
	for range 16 {
		id := e.newID()
		if _, taken := e.records[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", errors.New("giveaway: could not allocate a unique id")
}

// ToggleParticipation adds user when absent and removes them when present.
// It reports whether the user is a participant afterwards.
func (e *Engine) ToggleParticipation(ctx context.Context, id string, user int64) (bool, error) {
	e.mu.Lock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	if rec.Overdue(e.now()) {
		snap := e.finalizeLocked(rec)
		e.mu.Unlock()
		if _, err := e.commitFinalized(ctx, false, snap); err != nil {
			return false, err
		}
		return false, ErrAlreadyEnded
	}
	if rec.Ended {
		e.mu.Unlock()
		return false, ErrAlreadyEnded
	}
	joined := rec.toggle(user)
	if err := e.saveLocked(ctx); err != nil {
		rec.toggle(user)
		e.mu.Unlock()
		return false, storeErr("toggle", err)
	}
	snap := rec.Clone()
	e.mu.Unlock()

	e.log.Debug("participation toggled", logx.String("id", id), logx.Int64("user", user), logx.Bool("joined", joined))
	e.publish(EventParticipation, Event{Record: snap, UserID: user, Joined: joined})
	return joined, nil
}

// Finalize draws winners and ends the giveaway. Calling it on an ended
// giveaway returns the winners drawn the first time, or ErrNotSaved while
// that ending is not on disk yet.
func (e *Engine) Finalize(ctx context.Context, id string) ([]int64, error) {
	e.mu.Lock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if rec.Ended {
		if err := e.settledLocked(id); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		winners := slices.Clone(rec.Winners)
		e.mu.Unlock()
		return winners, nil
	}
	snap := e.finalizeLocked(rec)
	e.mu.Unlock()

	n, err := e.commitFinalized(ctx, false, snap)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return slices.Clone(snap.Winners), nil
}

// finalizeLocked is the only writer of Ended. It returns a snapshot for
// commitFinalized and marks the record as saving until that returns.
func (e *Engine) finalizeLocked(rec *Record) *Record {
	rec.Winners = e.sel.Select(rec.Participants, rec.WinnerCount)
	rec.Ended = true
	e.timers.Remove(timerName(rec.ID))
	e.saving[rec.ID] = true
	return rec.Clone()
}

// settledLocked reports ErrNotSaved while the ending of id is not on disk.
func (e *Engine) settledLocked(id string) error {
	if _, pending := e.unsaved[id]; pending || e.saving[id] {
		return fmt.Errorf("%q: %w", id, ErrNotSaved)
	}
	return nil
}

// commitFinalized persists finalized records and announces them, returning
// how many were announced. If the store keeps failing, the records stay
// ended in memory and their announcement waits for the next Sweep that
// manages to save.
func (e *Engine) commitFinalized(ctx context.Context, recovered bool, snaps ...*Record) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}
	err := e.persist(ctx, "finalize")

	// a record deleted while its ending was being saved is not announced
	e.mu.Lock()
	live := make([]*Record, 0, len(snaps))
	for _, s := range snaps {
		delete(e.saving, s.ID)
		if _, ok := e.records[s.ID]; !ok {
			continue
		}
		if err != nil {
			e.unsaved[s.ID] = recovered
		}
		live = append(live, s)
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Error("finalize not persisted; announcement deferred", logx.Int("count", len(live)), logx.Err(err))
		return 0, storeErr("finalize", err)
	}
	if dropped := len(snaps) - len(live); dropped > 0 {
		e.log.Info("ended giveaways deleted before announcement", logx.Int("count", dropped))
	}
	for _, s := range live {
		e.log.Info("giveaway ended",
			logx.String("id", s.ID),
			logx.Int("participants", len(s.Participants)),
			logx.Int64s("winners", s.Winners),
			logx.Bool("recovered", recovered),
		)
		e.publish(EventEnded, Event{Record: s, Winners: slices.Clone(s.Winners), Recovered: recovered})
	}
	return len(live), nil
}

// Reroll draws a fresh set of winners from an ended giveaway without
// changing the stored record.
func (e *Engine) Reroll(ctx context.Context, id string) ([]int64, error) {
	e.mu.Lock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if rec.Overdue(e.now()) {
		snap := e.finalizeLocked(rec)
		e.mu.Unlock()
		if _, err := e.commitFinalized(ctx, false, snap); err != nil {
			return nil, err
		}
		e.mu.Lock()
		if rec, err = e.lookupLocked(id); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	if !rec.Ended {
		e.mu.Unlock()
		return nil, ErrNotYetEnded
	}
	if err := e.settledLocked(id); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	winners := e.sel.Select(rec.Participants, rec.WinnerCount)
	snap := rec.Clone()
	e.mu.Unlock()

	e.log.Info("giveaway rerolled", logx.String("id", id), logx.Int64s("winners", winners))
	e.publish(EventRerolled, Event{Record: snap, Winners: slices.Clone(winners)})
	return winners, nil
}

// Delete cancels the countdown and removes the giveaway.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.timers.Remove(timerName(id))
	delete(e.records, id)
	delete(e.unsaved, id)
	e.mu.Unlock()

	if err := e.persist(ctx, "delete"); err != nil {
		e.mu.Lock()
		if _, reused := e.records[id]; !reused {
			e.records[id] = rec
			if !rec.Ended {
				e.armLocked(rec)
			}
		}
		e.mu.Unlock()
		e.log.Error("delete not persisted; giveaway restored", logx.String("id", id), logx.Err(err))
		return storeErr("delete", err)
	}
	e.log.Info("giveaway deleted", logx.String("id", id))
	e.publish(EventDeleted, Event{Record: rec.Clone()})
	return nil
}

// AttachMessage records the chat message that renders the giveaway.
func (e *Engine) AttachMessage(ctx context.Context, id string, messageID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		return err
	}
	prev := rec.MessageID
	rec.MessageID = messageID
	if err := e.saveLocked(ctx); err != nil {
		rec.MessageID = prev
		return storeErr("attach message", err)
	}
	return nil
}

func (e *Engine) Get(id string) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// List returns snapshots ordered by end time. With activeOnly set, ended
// giveaways are skipped.
func (e *Engine) List(activeOnly bool) []*Record {
	e.mu.Lock()
	out := make([]*Record, 0, len(e.records))
	for _, rec := range e.records {
		if activeOnly && rec.Ended {
			continue
		}
		out = append(out, rec.Clone())
	}
	e.mu.Unlock()
	slices.SortFunc(out, func(a, b *Record) int {
		if c := cmp.Compare(a.EndTime, b.EndTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (e *Engine) Stats(id string, user int64) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.lookupLocked(id)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(rec, user, e.now()), nil
}

// Counts reports active and ended giveaways.
func (e *Engine) Counts() (active, ended int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.records {
		if rec.Ended {
			ended++
		} else {
			active++
		}
	}
	return active, ended
}

func (e *Engine) lookupLocked(id string) (*Record, error) {
	if !e.ready {
		return nil, ErrNotReady
	}
	rec, ok := e.records[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (e *Engine) saveLocked(ctx context.Context) error {
	body, err := encodeRecords(e.records)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.SaveTimeout)
	defer cancel()
	return e.store.Save(cctx, DocumentName, body)
}

// persist saves the current state, retrying with backoff. Retries ignore
// caller cancellation so a critical transition is not abandoned halfway.
func (e *Engine) persist(ctx context.Context, op string) error {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	var err error
	for attempt := 1; ; attempt++ {
		e.mu.Lock()
		err = e.saveLocked(ctx)
		e.mu.Unlock()
		if err == nil {
			return nil
		}
		e.publishStore(EventStoreRetry, StoreEvent{Op: op, Attempt: attempt, Err: err.Error()})
		e.log.Warn("store save failed", logx.String("op", op), logx.Int("attempt", attempt), logx.Err(err))
		if attempt >= cfg.StoreRetryMax {
			break
		}
		time.Sleep(retryDelay(cfg, attempt))
	}
	e.publishStore(EventStoreFailed, StoreEvent{Op: op, Attempt: cfg.StoreRetryMax, Err: err.Error()})
	return err
}

// retryDelay is the pause before attempt+1: exponential from StoreRetryBase,
// capped at StoreRetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.StoreRetryBase
	for i := 1; i < attempt && d < cfg.StoreRetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.StoreRetryMaxDelay)
	return min(time.Duration(float64(d)*(0.7+rand.Float64()*0.6)), cfg.StoreRetryMaxDelay)
}

func (e *Engine) publish(typ string, ev Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: ev})
}

func (e *Engine) publishStore(typ string, ev StoreEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: ev})
}
