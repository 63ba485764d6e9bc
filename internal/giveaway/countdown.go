package giveaway

import (
	"context"
	"errors"

	logx "giveawaybot/pkg/logx"
)

func timerName(id string) string { return "giveaway:" + id }

// armLocked (re)schedules the countdown check for an active record. The
// check fires at the deadline or after CheckInterval, whichever is sooner.
func (e *Engine) armLocked(rec *Record) {
	now := e.now()
	wait := min(rec.End().Sub(now), e.cfg.CheckInterval)
	wait = max(wait, 0)
	id := rec.ID
	_, err := e.timers.AddOnce(timerName(id), now.Add(wait), e.cfg.SaveTimeout*2, func(ctx context.Context) error {
		return e.tick(ctx, id)
	})
	if err != nil {
		e.log.Error("countdown not scheduled; relying on sweep", logx.String("id", id), logx.Err(err))
	}
}

// tick is one countdown check. Deleted and ended records are ignored, so a
// stale timer that slipped past cancellation is harmless.
func (e *Engine) tick(ctx context.Context, id string) error {
	e.mu.Lock()
	rec, ok := e.records[id]
	if !ok || rec.Ended {
		e.mu.Unlock()
		return nil
	}
	if !rec.Overdue(e.now()) {
		e.armLocked(rec)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	_, err := e.Finalize(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
