package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "giveawaybot/pkg/logx"
)

func newStarted(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Timezone: "UTC"}, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestAddOnceRunsOnce(t *testing.T) {
	t.Parallel()
	s := newStarted(t)
	var runs atomic.Int32
	done := make(chan struct{})
	_, err := s.AddOnce("g", time.Now().Add(10*time.Millisecond), time.Second, func(context.Context) error {
		runs.Add(1)
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	_, pending := s.Pending("g")
	assert.False(t, pending)
	assert.Equal(t, int32(1), runs.Load())
}

func TestAddOnceReplacesPending(t *testing.T) {
	t.Parallel()
	s := newStarted(t)
	var first, second atomic.Int32
	done := make(chan struct{})
	_, err := s.AddOnce("g", time.Now().Add(30*time.Millisecond), time.Second, func(context.Context) error {
		first.Add(1)
		return nil
	})
	require.NoError(t, err)
	_, err = s.AddOnce("g", time.Now().Add(60*time.Millisecond), time.Second, func(context.Context) error {
		second.Add(1)
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement did not run")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestRemoveCancelsPending(t *testing.T) {
	t.Parallel()
	s := newStarted(t)
	var runs atomic.Int32
	_, err := s.AddOnce("g", time.Now().Add(30*time.Millisecond), time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, s.Remove("g"))
	assert.False(t, s.Remove("g"))
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestOnceJobsWaitForStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	done := make(chan struct{})
	_, err := s.AddOnce("late", time.Now().Add(-time.Minute), time.Second, func(context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("ran before Start")
	case <-time.After(30 * time.Millisecond):
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue job not run after Start")
	}
}

func TestOnceJobDueDuringStopStaysPending(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	// Stop has cancelled running jobs but not yet disarmed the timers.
	s.tmu.Lock()
	s.runCancel()
	s.tmu.Unlock()

	done := make(chan struct{})
	_, err := s.AddOnce("countdown", time.Now().Add(5*time.Millisecond), time.Second, func(context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s.tmu.Lock()
		defer s.tmu.Unlock()
		d, ok := s.once["countdown"]
		return ok && d.timer == nil
	}, time.Second, time.Millisecond)
	_, pending := s.Pending("countdown")
	assert.True(t, pending)

	s.Stop(context.Background())
	s.Start(context.Background())
	defer s.Stop(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("kept job not run after restart")
	}
}

func TestPanicIsRecorded(t *testing.T) {
	t.Parallel()
	s := newStarted(t)
	_, err := s.AddOnce("boom", time.Now(), time.Second, func(context.Context) error { panic("bad") })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		h := s.Snapshot().History
		return len(h) == 1 && h[0].Error == "panic: bad"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	_, err := s.AddOnce(" ", time.Now(), 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNameRequired)
	_, err = s.AddCron("x", "not a cron", 0, func(context.Context) error { return nil })
	require.Error(t, err)
	_, err = s.AddInterval("x", 0, 0, func(context.Context) error { return nil })
	require.Error(t, err)

	_, err = s.AddSchedule("sweep", "5m", 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, "@every 5m0s", snap.Schedules[0].Spec)
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    string
		kind  SpecKind
		every time.Duration
	}{
		{"*/5 * * * *", SpecCron, 0},
		{"@hourly", SpecCron, 0},
		{"02:30", SpecInterval, 2*time.Hour + 30*time.Minute},
		{"55m", SpecInterval, 55 * time.Minute},
		{"every:00:10", SpecInterval, 10 * time.Minute},
	}
	for _, tc := range cases {
		ps, err := ParseSchedule(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.kind, ps.Kind, tc.in)
		assert.Equal(t, tc.every, ps.Every, tc.in)
	}
	for _, bad := range []string{"", "0s", "banana", "01:75"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"@every 1m", "*/5 * * * *", "0 30 9 * * *", "15m", "02:30"} {
		assert.NoError(t, ValidateSchedule(ok), ok)
	}
	for _, bad := range []string{"", "61 * * * *", "every tuesday", "soon", "-5m"} {
		assert.Error(t, ValidateSchedule(bad), bad)
	}
}
