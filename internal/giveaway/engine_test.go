package giveaway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHost = Host{UserID: 1, Name: "host", ChatID: -100, ThreadID: 0}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		prize   string
		winners int
		d       time.Duration
		want    error
	}{
		{"short prize", " x ", 1, time.Hour, ErrInvalidPrize},
		{"zero winners", "Medkit", 0, time.Hour, ErrInvalidWinnerCount},
		{"zero duration", "Medkit", 1, 0, ErrInvalidDuration},
	}
	for _, tc := range cases {
		_, err := h.engine.Create(ctx, tc.prize, tc.winners, tc.d, testHost)
		require.ErrorIs(t, err, tc.want, tc.name)
		require.ErrorIs(t, err, ErrValidation, tc.name)
	}
	assert.Empty(t, h.engine.List(false))
	assert.Zero(t, h.store.saves.Load(), "rejected creates must not touch the store")
}

func TestCreateRespectsMaxDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	h.engine.Apply(Config{MaxDuration: 24 * time.Hour})

	_, err := h.engine.Create(context.Background(), "Medkit", 1, 48*time.Hour, testHost)
	require.ErrorIs(t, err, ErrInvalidDuration)
}

func TestOperationsBeforeRecover(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	_, err := h.engine.Create(context.Background(), "Medkit", 1, time.Hour, testHost)
	require.ErrorIs(t, err, ErrNotReady)
	_, err = h.engine.ToggleParticipation(context.Background(), "any", 5)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestCreatePersistsAndArmsCountdown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)

	rec, err := h.engine.Create(context.Background(), "  Medkit  ", 2, 2*time.Minute, testHost)
	require.NoError(t, err)
	assert.Equal(t, "Medkit", rec.Prize)
	assert.False(t, rec.Ended)
	assert.NotEmpty(t, rec.Flavor)
	assert.Equal(t, h.clock.Now().Add(2*time.Minute).Unix(), rec.EndTime)

	stored := h.stored(t)
	require.Contains(t, stored, rec.ID)
	assert.Equal(t, rec.Prize, stored[rec.ID].Prize)

	// The first check fires after the check interval, not at the deadline.
	assert.True(t, h.clock.Now().Add(30*time.Second).Equal(h.timers.At(timerName(rec.ID))))
	assert.Equal(t, 1, countType(h.drain(), EventCreated))
}

func TestToggleIsItsOwnInverse(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)

	joined, err := h.engine.ToggleParticipation(ctx, rec.ID, 42)
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = h.engine.ToggleParticipation(ctx, rec.ID, 42)
	require.NoError(t, err)
	assert.False(t, joined)

	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Participants)
	assert.Empty(t, h.stored(t)[rec.ID].Participants)
}

func TestConcurrentJoinsAreAllRecorded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 3, time.Hour, testHost)
	require.NoError(t, err)

	const users = 64
	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.ToggleParticipation(ctx, rec.ID, u); err != nil {
				t.Errorf("toggle %d: %v", u, err)
			}
		}()
	}
	wg.Wait()

	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, users)
	assert.Len(t, h.stored(t)[rec.ID].Participants, users)
}

func TestToggleUnknownAndEnded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()

	_, err := h.engine.ToggleParticipation(ctx, "nope", 1)
	require.ErrorIs(t, err, ErrNotFound)

	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	_, err = h.engine.Finalize(ctx, rec.ID)
	require.NoError(t, err)

	_, err = h.engine.ToggleParticipation(ctx, rec.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyEnded)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestToggleOnOverdueRecordFinalizesFirst(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Minute, testHost)
	require.NoError(t, err)
	_, err = h.engine.ToggleParticipation(ctx, rec.ID, 7)
	require.NoError(t, err)
	h.drain()

	h.clock.Advance(2 * time.Minute)
	_, err = h.engine.ToggleParticipation(ctx, rec.ID, 8)
	require.ErrorIs(t, err, ErrAlreadyEnded)

	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended)
	assert.Equal(t, []int64{7}, got.Participants)
	assert.Equal(t, []int64{7}, got.Winners)
	assert.Equal(t, 1, countType(h.drain(), EventEnded))
}

func TestToggleStoreFailureRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	h.drain()

	h.store.failures.Store(1)
	_, err = h.engine.ToggleParticipation(ctx, rec.ID, 9)
	require.ErrorIs(t, err, ErrStore)

	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Participants)
	assert.Zero(t, countType(h.drain(), EventParticipation))
}

func TestMedkitScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()

	secs, err := ParseDuration("1h")
	require.NoError(t, err)
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Duration(secs)*time.Second, testHost)
	require.NoError(t, err)
	for _, u := range []int64{101, 202} {
		_, err := h.engine.ToggleParticipation(ctx, rec.ID, u)
		require.NoError(t, err)
	}

	// Walk the countdown forward the way the scheduler would.
	for i := 0; i < 121; i++ {
		h.clock.Advance(30 * time.Second)
		h.timers.fire(t, h.clock.Now())
	}

	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	require.True(t, got.Ended)
	require.Len(t, got.Winners, 1)
	assert.Contains(t, []int64{101, 202}, got.Winners[0])
	assert.False(t, h.timers.Has(timerName(rec.ID)))

	events := h.drain()
	assert.Equal(t, 1, countType(events, EventEnded))

	for range 20 {
		again, err := h.engine.Reroll(ctx, rec.ID)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Contains(t, []int64{101, 202}, again[0])
	}
	after, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Winners, after.Winners, "reroll must not change the stored record")
}

func TestCountdownRearmsUntilDeadline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	rec, err := h.engine.Create(context.Background(), "Medkit", 1, 45*time.Second, testHost)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	h.timers.fire(t, h.clock.Now())
	require.True(t, h.timers.Has(timerName(rec.ID)))
	assert.True(t, rec.End().Equal(h.timers.At(timerName(rec.ID))))

	h.clock.Advance(15 * time.Second)
	h.timers.fire(t, h.clock.Now())
	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 2, time.Hour, testHost)
	require.NoError(t, err)
	for u := int64(1); u <= 10; u++ {
		_, err := h.engine.ToggleParticipation(ctx, rec.ID, u)
		require.NoError(t, err)
	}
	h.drain()

	first, err := h.engine.Finalize(ctx, rec.ID)
	require.NoError(t, err)
	second, err := h.engine.Finalize(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, countType(h.drain(), EventEnded))
	assert.True(t, h.stored(t)[rec.ID].Ended)
}

func TestFinalizeWithoutParticipants(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	rec, err := h.engine.Create(context.Background(), "Medkit", 3, time.Hour, testHost)
	require.NoError(t, err)
	winners, err := h.engine.Finalize(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestFinalizeRetriesStoreWrites(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)

	h.store.failures.Store(2)
	_, err = h.engine.Finalize(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, h.stored(t)[rec.ID].Ended)
}

func TestFinalizeStoreOutageDefersAnnouncement(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	h.drain()

	h.store.failures.Store(3)
	_, err = h.engine.Finalize(ctx, rec.ID)
	require.ErrorIs(t, err, ErrStore)

	got, err := h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended, "ended never reverts")
	assert.False(t, h.stored(t)[rec.ID].Ended)
	assert.Zero(t, countType(h.drain(), EventEnded))

	n, err := h.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, h.stored(t)[rec.ID].Ended)
	assert.Equal(t, 1, countType(h.drain(), EventEnded))
}

// slowRetry leaves a wide pause between save attempts.
var slowRetry = Config{
	CheckInterval:      30 * time.Second,
	StoreRetryMax:      3,
	StoreRetryBase:     100 * time.Millisecond,
	StoreRetryMaxDelay: 100 * time.Millisecond,
}

func TestFinalizeNotAcknowledgedWhileSaving(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	_, err = h.engine.ToggleParticipation(ctx, rec.ID, 5)
	require.NoError(t, err)
	h.drain()
	h.engine.Apply(slowRetry)

	h.store.failures.Store(3)
	first := make(chan error, 1)
	go func() {
		_, err := h.engine.Finalize(ctx, rec.ID)
		first <- err
	}()
	require.Eventually(t, func() bool { return h.store.failures.Load() < 3 }, time.Second, time.Millisecond)

	_, err = h.engine.Finalize(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotSaved)
	assert.ErrorIs(t, err, ErrStore)
	_, err = h.engine.Reroll(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotSaved)

	require.ErrorIs(t, <-first, ErrStore)
	assert.False(t, h.stored(t)[rec.ID].Ended)
	_, err = h.engine.Finalize(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotSaved)

	n, err := h.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	winners, err := h.engine.Finalize(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, winners)
}

func TestDeleteDuringFinalizeSaveSkipsAnnouncement(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	h.drain()
	h.engine.Apply(slowRetry)

	h.store.failures.Store(1)
	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Finalize(ctx, rec.ID)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.store.failures.Load() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, h.engine.Delete(ctx, rec.ID))
	require.ErrorIs(t, <-done, ErrNotFound)

	events := h.drain()
	assert.Equal(t, 1, countType(events, EventDeleted))
	assert.Zero(t, countType(events, EventEnded))
	assert.NotContains(t, h.stored(t), rec.ID)

	n, err := h.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, countType(h.drain(), EventEnded))
}

func TestRerollRequiresEnded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()

	_, err := h.engine.Reroll(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	_, err = h.engine.Reroll(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotYetEnded)
}

func TestDeleteCancelsCountdown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Minute, testHost)
	require.NoError(t, err)
	require.True(t, h.timers.Has(timerName(rec.ID)))

	require.NoError(t, h.engine.Delete(ctx, rec.ID))
	assert.False(t, h.timers.Has(timerName(rec.ID)))
	assert.NotContains(t, h.stored(t), rec.ID)

	_, err = h.engine.Get(rec.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// A countdown callback that already escaped cancellation is a no-op.
	require.NoError(t, h.engine.tick(ctx, rec.ID))
	events := h.drain()
	assert.Equal(t, 1, countType(events, EventDeleted))
	assert.Zero(t, countType(events, EventEnded))
}

func TestDeleteUnknownLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	before := h.store.saves.Load()

	err = h.engine.Delete(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, before, h.store.saves.Load())
	assert.Contains(t, h.stored(t), rec.ID)
}

func TestDeleteStoreOutageRestoresRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)

	h.store.failures.Store(3)
	require.ErrorIs(t, h.engine.Delete(ctx, rec.ID), ErrStore)
	_, err = h.engine.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, h.timers.Has(timerName(rec.ID)))
}

func TestStatsAndList(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	a, err := h.engine.Create(ctx, "Medkit", 2, 2*time.Hour, testHost)
	require.NoError(t, err)
	b, err := h.engine.Create(ctx, "Ammo crate", 1, time.Hour, testHost)
	require.NoError(t, err)

	st, err := h.engine.Stats(a.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.Chance, "chance is capped at 1")
	assert.False(t, st.Joined)

	for u := int64(1); u <= 8; u++ {
		_, err := h.engine.ToggleParticipation(ctx, a.ID, u)
		require.NoError(t, err)
	}
	h.clock.Advance(30 * time.Minute)
	st, err = h.engine.Stats(a.ID, 5)
	require.NoError(t, err)
	assert.True(t, st.Joined)
	assert.Equal(t, 8, st.Participants)
	assert.InDelta(t, 0.25, st.Chance, 1e-9)
	assert.Equal(t, 90*time.Minute, st.Remaining)

	ids := []string{}
	for _, r := range h.engine.List(true) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{b.ID, a.ID}, ids)

	_, err = h.engine.Finalize(ctx, b.ID)
	require.NoError(t, err)
	active, ended := h.engine.Counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, ended)
	assert.Len(t, h.engine.List(true), 1)
}

func TestAttachMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)

	require.NoError(t, h.engine.AttachMessage(ctx, rec.ID, 777))
	assert.Equal(t, 777, h.stored(t)[rec.ID].MessageID)
	require.ErrorIs(t, h.engine.AttachMessage(ctx, "missing", 1), ErrNotFound)
}

func TestEventsCarrySnapshots(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.recover(t)
	ctx := context.Background()
	rec, err := h.engine.Create(ctx, "Medkit", 1, time.Hour, testHost)
	require.NoError(t, err)
	_, err = h.engine.ToggleParticipation(ctx, rec.ID, 3)
	require.NoError(t, err)

	var seen []string
	for _, e := range h.drain() {
		ev, ok := e.Data.(Event)
		require.True(t, ok, "event %s carries %T", e.Type, e.Data)
		seen = append(seen, fmt.Sprintf("%s:%d", e.Type, len(ev.Record.Participants)))
		if e.Type == EventParticipation {
			assert.Equal(t, int64(3), ev.UserID)
			assert.True(t, ev.Joined)
		}
	}
	assert.True(t, slices.Equal(seen, []string{EventCreated + ":0", EventParticipation + ":1"}), "%v", seen)
}

func TestErrorKindsAreDistinct(t *testing.T) {
	t.Parallel()
	kinds := []error{ErrValidation, ErrNotFound, ErrInvalidState, ErrStore}
	specific := map[error]error{
		ErrInvalidPrize:       ErrValidation,
		ErrInvalidWinnerCount: ErrValidation,
		ErrInvalidDuration:    ErrValidation,
		ErrInvalidFormat:      ErrValidation,
		ErrUnknownUnit:        ErrValidation,
		ErrAlreadyEnded:       ErrInvalidState,
		ErrNotYetEnded:        ErrInvalidState,
		ErrNotReady:           ErrInvalidState,
		ErrCorruptStore:       ErrStore,
		ErrNotSaved:           ErrStore,
	}
	for err, kind := range specific {
		for _, k := range kinds {
			if got := errors.Is(err, k); got != (k == kind) {
				t.Fatalf("errors.Is(%v, %v)=%v", err, k, got)
			}
		}
	}
}
