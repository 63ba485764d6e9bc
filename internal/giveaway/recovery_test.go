package giveaway

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecord(id string, end time.Time, ended bool, participants ...int64) *Record {
	return &Record{
		ID:           id,
		Prize:        "Medkit",
		WinnerCount:  1,
		Participants: participants,
		EndTime:      end.Unix(),
		Ended:        ended,
		HostID:       1,
		ChatID:       -100,
		CreatedAt:    end.Add(-time.Hour).Unix(),
	}
}

func TestRecoverFinalizesOverdueExactlyOnce(t *testing.T) {
	t.Parallel()
	now := newFakeClock().Now()
	seed := map[string]*Record{
		"overdue1": seedRecord("overdue1", now.Add(-time.Minute), false, 5, 6),
		"active01": seedRecord("active01", now.Add(time.Hour), false, 7),
		"ended001": seedRecord("ended001", now.Add(-time.Hour), true, 8),
	}
	h := newHarness(t, seed)

	rep := h.recover(t)
	assert.Equal(t, RecoveryReport{Loaded: 3, Resumed: 1, Finalized: 1}, rep)

	events := h.drain()
	require.Equal(t, 1, countType(events, EventEnded))
	ev := events[0].Data.(Event)
	assert.Equal(t, "overdue1", ev.Record.ID)
	assert.True(t, ev.Recovered)

	stored := h.stored(t)
	assert.True(t, stored["overdue1"].Ended)
	assert.Len(t, stored["overdue1"].Winners, 1)
	assert.False(t, stored["active01"].Ended)
	assert.True(t, h.timers.Has(timerName("active01")))
	assert.False(t, h.timers.Has(timerName("ended001")))

	// First operation on the recovered id sees the ended record.
	_, err := h.engine.ToggleParticipation(context.Background(), "overdue1", 99)
	require.ErrorIs(t, err, ErrAlreadyEnded)

	// A second process start over the same store finalizes nothing.
	again := New(Config{}, h.store, newFakeTimers(), WithClock(h.clock.Now))
	rep2, err := again.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep2.Finalized)
	winners, err := again.Finalize(context.Background(), "overdue1")
	require.NoError(t, err)
	assert.Equal(t, stored["overdue1"].Winners, winners)
}

func TestRecoverCorruptStoreStartsEmpty(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.store.Store.Save(ctx, DocumentName, []byte(`{"giveaways": [`)))

	rep := h.recover(t)
	assert.True(t, rep.Corrupt)
	assert.Empty(t, h.engine.List(false))

	name := DocumentName + "-corrupt-" + strconv.FormatInt(h.clock.Now().Unix(), 10)
	kept, err := h.store.Store.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, `{"giveaways": [`, string(kept))

	_, err = h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
}

func TestRecoverSkipsInvalidRecords(t *testing.T) {
	t.Parallel()
	now := newFakeClock().Now()
	bad := seedRecord("bad00001", now.Add(time.Hour), false)
	bad.WinnerCount = 0
	dup := seedRecord("dup00001", now.Add(time.Hour), false, 4, 4, 5)
	h := newHarness(t, map[string]*Record{"bad00001": bad, "dup00001": dup})

	rep := h.recover(t)
	assert.Equal(t, 1, rep.Dropped)
	got, err := h.engine.Get("dup00001")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, got.Participants)
}

func TestSweepFinalizesMissedCountdowns(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Minute, testHost)
	require.NoError(t, err)

	// Lose the timer, as if the scheduler dropped it.
	h.timers.Remove(timerName(rec.ID))
	h.clock.Advance(5 * time.Minute)
	h.drain()

	n, err := h.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	events := h.drain()
	require.Equal(t, 1, countType(events, EventEnded))
	assert.False(t, events[0].Data.(Event).Recovered, "a missed countdown is not a restart recovery")

	n, err = h.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecoverWithFailingSaveDefersToSweep(t *testing.T) {
	t.Parallel()
	now := newFakeClock().Now()
	h := newHarness(t, map[string]*Record{
		"overdue1": seedRecord("overdue1", now.Add(-time.Minute), false, 5),
	})
	h.store.failures.Store(10)

	rep := h.recover(t)
	assert.Equal(t, 1, rep.Finalized)
	assert.Equal(t, 1, rep.Deferred)
	assert.Zero(t, countType(h.drain(), EventEnded))
	assert.False(t, h.stored(t)["overdue1"].Ended)

	h.store.failures.Store(0)
	n, err := h.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, h.stored(t)["overdue1"].Ended)
	assert.Equal(t, 1, countType(h.drain(), EventEnded))
}
