package giveaway

import (
	"context"
	"errors"

	logx "giveawaybot/pkg/logx"
)

// RecoveryReport summarizes what Recover found in the store.
type RecoveryReport struct {
	Loaded    int
	Resumed   int
	Finalized int
	Dropped   int
	Corrupt   bool
	// Deferred counts finalizations whose save failed; Sweep retries them.
	Deferred int
}

// Recover loads persisted giveaways, finalizes the overdue ones and arms a
// countdown for the rest. No other operation is accepted before it returns;
// overdue records are ended inside the same critical section that makes the
// engine ready.
//
// A malformed document is quarantined and replaced by an empty store. A
// store that cannot be read at all is returned as an error. A failed save of
// the finalized records is not: they are counted in Deferred and announced
// by the Sweep that first saves them.
func (e *Engine) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport

	records, dropped, err := LoadRecords(ctx, e.store)
	switch {
	case errors.Is(err, ErrCorruptStore):
		e.log.Error("giveaway store is corrupt; starting empty", logx.Err(err))
		quarantine(ctx, e.store, e.now(), e.log)
		records, rep.Corrupt = map[string]*Record{}, true
	case err != nil:
		return rep, err
	}
	if dropped > 0 {
		e.log.Warn("invalid giveaway records skipped", logx.Int("count", dropped))
	}
	rep.Loaded, rep.Dropped = len(records), dropped

	e.mu.Lock()
	e.records = records
	e.ready = true
	now := e.now()
	var finalized []*Record
	for _, rec := range records {
		switch {
		case rec.Ended:
		case rec.Overdue(now):
			finalized = append(finalized, e.finalizeLocked(rec))
		default:
			e.armLocked(rec)
			rep.Resumed++
		}
	}
	e.mu.Unlock()

	rep.Finalized = len(finalized)
	e.log.Info("giveaways recovered",
		logx.Int("loaded", rep.Loaded),
		logx.Int("resumed", rep.Resumed),
		logx.Int("finalized", rep.Finalized),
		logx.Bool("corrupt", rep.Corrupt),
	)
	if _, err := e.commitFinalized(ctx, true, finalized...); err != nil {
		rep.Deferred = len(finalized)
	}
	return rep, nil
}

// Sweep finalizes every overdue record and retries finalizations whose
// save failed earlier. It backs up the per-record countdowns and returns how
// many giveaways it announced.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return 0, nil
	}
	now := e.now()
	var swept, retried []*Record
	for _, rec := range e.records {
		if rec.Overdue(now) {
			swept = append(swept, e.finalizeLocked(rec))
		}
	}
	deferredRecovered := false
	for id, recovered := range e.unsaved {
		if rec, ok := e.records[id]; ok && rec.Ended {
			retried = append(retried, rec.Clone())
			deferredRecovered = deferredRecovered || recovered
			e.saving[id] = true
		}
		delete(e.unsaved, id)
	}
	e.mu.Unlock()

	if len(swept) > 0 {
		e.log.Warn("overdue giveaways found by sweep", logx.Int("count", len(swept)))
	}
	n, err := e.commitFinalized(ctx, false, swept...)
	if err != nil {
		e.requeue(retried, deferredRecovered)
		return 0, err
	}
	m, err := e.commitFinalized(ctx, deferredRecovered, retried...)
	return n + m, err
}

func (e *Engine) requeue(recs []*Record, recovered bool) {
	e.mu.Lock()
	for _, r := range recs {
		delete(e.saving, r.ID)
		if _, ok := e.records[r.ID]; ok {
			e.unsaved[r.ID] = recovered
		}
	}
	e.mu.Unlock()
}
