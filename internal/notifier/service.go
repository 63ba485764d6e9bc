package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/giveaway"
	rtsup "giveawaybot/internal/runtime/supervisor"
	kit "giveawaybot/internal/transport"
	logx "giveawaybot/pkg/logx"

	"golang.org/x/time/rate"
)

// Attacher stores the rendered message ID back on a giveaway.
type Attacher interface {
	AttachMessage(ctx context.Context, id string, messageID int) error
}

type job struct {
	kind string
	ev   giveaway.Event
	// seq orders participation edits of one giveaway.
	seq uint64
}

type Option func(*Service)

func WithNames(n *Names) Option { return func(s *Service) { s.names = n } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service turns giveaway events into chat messages:
// bus subscription + sharded worker queues + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	sender   kit.Sender
	attacher Attacher
	bus      eventbus.Bus
	names    *Names
	loc      *time.Location
	now      func() time.Time

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queues   []chan job
	unsub    func()
	sup      *rtsup.Supervisor
	stopDone chan struct{}

	// Message refs known before the engine copy carries them, and the newest
	// queued participation edit per giveaway.
	rmu     sync.Mutex
	refs    map[string]kit.MessageRef
	editSeq map[string]uint64
	seq     uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, attacher Attacher, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log,
		sender:   sender,
		attacher: attacher,
		bus:      bus,
		now:      time.Now,
		loc:      time.UTC,
		refs:     map[string]kit.MessageRef{},
		editSeq:  map[string]uint64{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.names == nil {
		s.names = NewNames(0)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Names() *Names { return s.names }

func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates rate and retry settings. Worker and queue sizes take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

// Start subscribes to giveaway events and starts the workers. It is a no-op
// when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		s.log.Info("notifier disabled")
		return
	}
	if s.queues != nil {
		return
	}

	workers := s.cfg.Workers
	per := max(1, s.cfg.QueueSize/workers)
	s.queues = make([]chan job, workers)
	for i := range s.queues {
		s.queues[i] = make(chan job, per)
	}
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "notifier.supervisor"))))

	var events <-chan eventbus.Event
	if s.bus != nil {
		events, s.unsub = s.bus.Subscribe(s.cfg.QueueSize, "giveaway.")
	}
	if events != nil {
		s.sup.Go("events", func(c context.Context) error {
			s.eventLoop(c, events)
			return nil
		})
	}

	for i, q := range s.queues {
		s.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping || c.Err() != nil {
				return nil
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("queue", per*workers))
}

// Stop stops intake and drains the queues best-effort until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	queues := s.queues
	sup := s.sup
	unsub := s.unsub
	if queues == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		if unsub != nil {
			unsub()
		}
		s.sendWG.Wait()
		for _, q := range queues {
			close(q)
		}
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queues = nil
		s.unsub = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.Enqueue(ev); err != nil && !errors.Is(err, ErrStopped) {
				s.log.Warn("notification not queued", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

// Enqueue schedules delivery of a giveaway bus event. Events without a
// giveaway payload are ignored.
func (s *Service) Enqueue(e eventbus.Event) error {
	ev, ok := e.Data.(giveaway.Event)
	if !ok || ev.Record == nil {
		return nil
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queues == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queues[shard(ev.Record.ID, len(s.queues))]
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	j := job{kind: e.Type, ev: ev}
	if e.Type == giveaway.EventParticipation {
		s.rmu.Lock()
		s.seq++
		j.seq = s.seq
		s.editSeq[ev.Record.ID] = j.seq
		s.rmu.Unlock()
	}

	select {
	case q <- j:
		return nil
	default:
		s.publish(EventDropped, j, ErrQueueFull)
		return ErrQueueFull
	}
}

func shard(id string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.handle(ctx, j)
		}
	}
}

func (s *Service) handle(ctx context.Context, j job) {
	rec := j.ev.Record
	to := kit.ChatTarget{ChatID: rec.ChatID, ThreadID: rec.ThreadID}

	switch j.kind {
	case giveaway.EventCreated:
		msg := giveawayMessage(rec, s.names, s.loc, s.now())
		var ref kit.MessageRef
		err := s.deliver(ctx, j, func(c context.Context) error {
			var err error
			ref, err = msg.Send(c, s.sender, to)
			return err
		})
		if err != nil {
			return
		}
		s.rmu.Lock()
		s.refs[rec.ID] = ref
		s.rmu.Unlock()
		if s.attacher != nil {
			actx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := s.attacher.AttachMessage(actx, rec.ID, ref.MessageID); err != nil {
				s.log.Warn("attach giveaway message failed", logx.String("id", rec.ID), logx.Err(err))
			}
			cancel()
		}

	case giveaway.EventParticipation:
		s.rmu.Lock()
		stale := s.editSeq[rec.ID] != j.seq
		if !stale {
			delete(s.editSeq, rec.ID)
		}
		s.rmu.Unlock()
		if stale {
			return
		}
		ref, ok := s.ref(rec)
		if !ok {
			s.log.Debug("no giveaway message to edit", logx.String("id", rec.ID))
			return
		}
		msg := giveawayMessage(rec, s.names, s.loc, s.now())
		_ = s.deliver(ctx, j, func(c context.Context) error { return msg.Edit(c, s.sender, ref) })

	case giveaway.EventEnded:
		if ref, ok := s.ref(rec); ok {
			msg := giveawayMessage(rec, s.names, s.loc, s.now())
			_ = s.deliver(ctx, j, func(c context.Context) error { return msg.Edit(c, s.sender, ref) })
		}
		s.forget(rec.ID)
		ann := winnersMessage(rec, j.ev.Winners, s.names, false)
		_ = s.deliver(ctx, j, func(c context.Context) error {
			_, err := ann.Send(c, s.sender, to)
			return err
		})

	case giveaway.EventRerolled:
		ann := winnersMessage(rec, j.ev.Winners, s.names, true)
		_ = s.deliver(ctx, j, func(c context.Context) error {
			_, err := ann.Send(c, s.sender, to)
			return err
		})

	case giveaway.EventDeleted:
		ref, ok := s.ref(rec)
		s.forget(rec.ID)
		if !ok {
			return
		}
		_ = s.deliver(ctx, j, func(c context.Context) error { return s.sender.DeleteMessage(c, ref) })
	}
}

func (s *Service) ref(rec *giveaway.Record) (kit.MessageRef, bool) {
	if rec.MessageID != 0 {
		return kit.MessageRef{ChatID: rec.ChatID, ThreadID: rec.ThreadID, MessageID: rec.MessageID}, true
	}
	s.rmu.Lock()
	ref, ok := s.refs[rec.ID]
	s.rmu.Unlock()
	return ref, ok
}

func (s *Service) forget(id string) {
	s.rmu.Lock()
	delete(s.refs, id)
	delete(s.editSeq, id)
	s.rmu.Unlock()
}

// deliver runs send under the rate limiter, retrying with backoff.
func (s *Service) deliver(ctx context.Context, j job, send func(ctx context.Context) error) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.sender == nil {
		return ErrStopped
	}
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := send(callCtx)
		cancel()
		if err == nil {
			s.appendHistory(j, nil)
			s.publish(EventSent, j, nil)
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.String("kind", j.kind), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	s.log.Warn("notification failed",
		logx.String("kind", j.kind),
		logx.String("id", j.ev.Record.ID),
		logx.Int64("chat_id", j.ev.Record.ChatID),
		logx.Err(lastErr),
	)
	s.appendHistory(j, lastErr)
	s.publish(EventFailed, j, lastErr)
	return lastErr
}

func (s *Service) publish(typ string, j job, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{Kind: j.kind, GiveawayID: j.ev.Record.ID, ChatID: j.ev.Record.ChatID, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(j job, err error) {
	it := HistoryItem{At: time.Now(), Kind: j.kind, GiveawayID: j.ev.Record.ID}
	if err != nil {
		it.Err = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
