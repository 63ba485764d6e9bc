package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/giveaway"
	kit "giveawaybot/internal/transport"
	logx "giveawaybot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op   string
	ref  kit.MessageRef
	text string
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []call
	nextID int
	fail   int
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return kit.MessageRef{}, errors.New("flood wait")
	}
	f.nextID++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}
	f.calls = append(f.calls, call{op: "send", ref: ref, text: text})
	return ref, nil
}

func (f *fakeSender) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "edit", ref: ref, text: text})
	return nil
}

func (f *fakeSender) DeleteMessage(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "delete", ref: ref})
	return nil
}

func (f *fakeSender) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeAttacher struct {
	mu  sync.Mutex
	ids map[string]int
}

func (a *fakeAttacher) AttachMessage(_ context.Context, id string, messageID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ids == nil {
		a.ids = map[string]int{}
	}
	a.ids[id] = messageID
	return nil
}

func (a *fakeAttacher) get(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ids[id]
}

func testConfig() Config {
	return Config{Enabled: true, Workers: 1, QueueSize: 64, RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}
}

func startService(t *testing.T, sender kit.Sender, att Attacher) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	s := New(testConfig(), sender, att, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func record() *giveaway.Record {
	return &giveaway.Record{
		ID:           "ab12cd",
		Prize:        "Night vision goggles",
		WinnerCount:  1,
		Participants: []int64{},
		EndTime:      time.Now().Add(time.Hour).Unix(),
		HostID:       7,
		HostName:     "Sidorovich",
		ChatID:       -100,
	}
}

func publish(bus eventbus.Bus, typ string, ev giveaway.Event) {
	bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func TestLifecycleMessages(t *testing.T) {
	sender := &fakeSender{}
	att := &fakeAttacher{}
	s, bus := startService(t, sender, att)
	s.Names().Remember(42, "Strelok")

	rec := record()
	publish(bus, giveaway.EventCreated, giveaway.Event{Record: rec.Clone()})
	require.Eventually(t, func() bool { return att.get(rec.ID) == 1 }, time.Second, 5*time.Millisecond)

	// Participation before the engine copy carries the message ID.
	rec.Participants = []int64{42}
	publish(bus, giveaway.EventParticipation, giveaway.Event{Record: rec.Clone(), UserID: 42, Joined: true})

	rec.MessageID = 1
	rec.Ended = true
	rec.Winners = []int64{42}
	publish(bus, giveaway.EventEnded, giveaway.Event{Record: rec.Clone(), Winners: rec.Winners})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
	calls := sender.snapshot()

	assert.Equal(t, "send", calls[0].op)
	assert.Contains(t, calls[0].text, "Night vision goggles")
	assert.Contains(t, calls[0].text, "Sidorovich")

	assert.Equal(t, "edit", calls[1].op)
	assert.Equal(t, 1, calls[1].ref.MessageID)
	assert.Contains(t, calls[1].text, "Participants</b>: 1")

	assert.Equal(t, "edit", calls[2].op)
	assert.Contains(t, calls[2].text, "Giveaway ended")

	assert.Equal(t, "send", calls[3].op)
	assert.Contains(t, calls[3].text, "tg://user?id=42")
	assert.Contains(t, calls[3].text, "Strelok")
}

func TestEndedWithoutParticipants(t *testing.T) {
	sender := &fakeSender{}
	_, bus := startService(t, sender, nil)

	rec := record()
	rec.Ended = true
	publish(bus, giveaway.EventEnded, giveaway.Event{Record: rec})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	c := sender.snapshot()[0]
	assert.Equal(t, "send", c.op)
	assert.Contains(t, c.text, "No participants")
}

func TestRerollAndDelete(t *testing.T) {
	sender := &fakeSender{}
	_, bus := startService(t, sender, nil)

	rec := record()
	rec.Ended = true
	rec.MessageID = 9
	publish(bus, giveaway.EventRerolled, giveaway.Event{Record: rec.Clone(), Winners: []int64{5}})
	publish(bus, giveaway.EventDeleted, giveaway.Event{Record: rec.Clone()})

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	calls := sender.snapshot()
	assert.Equal(t, "send", calls[0].op)
	assert.Contains(t, calls[0].text, "Re-roll")
	assert.Equal(t, call{op: "delete", ref: kit.MessageRef{ChatID: -100, MessageID: 9}}, calls[1])
}

func TestRetryThenFailEvent(t *testing.T) {
	sender := &fakeSender{fail: 10}
	s, bus := startService(t, sender, nil)
	failed, unsub := bus.Subscribe(4, EventFailed)
	defer unsub()

	publish(bus, giveaway.EventRerolled, giveaway.Event{Record: record(), Winners: []int64{1}})

	select {
	case ev := <-failed:
		ne := ev.Data.(NotificationEvent)
		assert.Equal(t, giveaway.EventRerolled, ne.Kind)
		assert.Contains(t, ne.Error, "flood wait")
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
	sender.mu.Lock()
	assert.Equal(t, 7, sender.fail, "one attempt plus two retries")
	sender.mu.Unlock()

	hist := s.Snapshot()
	require.Len(t, hist, 1)
	assert.NotEmpty(t, hist[0].Err)
}

func TestEnqueueIgnoresForeignPayload(t *testing.T) {
	s := New(testConfig(), &fakeSender{}, nil, logx.Nop(), nil)
	assert.NoError(t, s.Enqueue(eventbus.Event{Type: "giveaway.created", Data: "nope"}))
	assert.ErrorIs(t, s.Enqueue(eventbus.Event{Type: "giveaway.created", Data: giveaway.Event{Record: record()}}), ErrStopped)

	off := New(Config{}, &fakeSender{}, nil, logx.Nop(), nil)
	assert.ErrorIs(t, off.Enqueue(eventbus.Event{Type: "giveaway.created", Data: giveaway.Event{Record: record()}}), ErrDisabled)
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.GreaterOrEqual(t, retryDelay(cfg, 1), 70*time.Millisecond)
}

func TestNamesBounded(t *testing.T) {
	n := NewNames(2)
	n.Remember(1, "a")
	n.Remember(2, "b")
	n.Remember(3, "c")
	n.Remember(4, "  ")

	known := 0
	for id, name := range map[int64]string{1: "a", 2: "b", 3: "c"} {
		if n.Name(id) == name {
			known++
		}
	}
	assert.Equal(t, 2, known)
	assert.Equal(t, "c", n.Name(3))
	assert.Equal(t, "4", n.Name(4))
}
