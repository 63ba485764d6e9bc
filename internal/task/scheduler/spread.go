package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval jobs registered together would otherwise all fire on the same
// tick; the first run is pushed back by up to this much.
const maxStartupSpread = 30 * time.Second

// delayedFirst runs at first once, then follows base.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (s *delayedFirst) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// spreadInterval returns an @every schedule whose first run lands at
// now+every plus a random offset below min(every, maxStartupSpread).
func spreadInterval(every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	limit := min(every, maxStartupSpread)
	if limit <= 0 {
		return base, 0
	}
	jitter := rand.N(limit)
	return &delayedFirst{base: base, first: now.Add(every + jitter)}, jitter
}
