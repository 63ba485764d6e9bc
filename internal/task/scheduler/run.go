package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"giveawaybot/internal/eventbus"
	logx "giveawaybot/pkg/logx"
)

// execute runs job on a tracked goroutine. When running is non-nil and a
// previous run still holds it, this trigger is skipped. It reports false
// when the service was stopping and the job did not start.
func (s *Service) execute(name string, timeout time.Duration, job Job, running *atomic.Bool) bool {
	if running != nil && !running.CompareAndSwap(false, true) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name))
		return true
	}

	s.tmu.Lock()
	parent := s.runCtx
	if timeout <= 0 {
		timeout = s.jobCfg.DefaultTimeout
	}
	s.tmu.Unlock()
	if parent.Err() != nil {
		if running != nil {
			running.Store(false)
		}
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if running != nil {
			defer running.Store(false)
		}
		ctx, cancel := parent, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parent, timeout)
		}
		defer cancel()

		start := time.Now()
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					s.log.Error("task.panic", logx.String("task", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			err = job(ctx)
		}()
		took := time.Since(start)
		if err != nil {
			s.log.Warn("task failed", logx.String("task", name), logx.Duration("took", took), logx.Err(err))
		} else {
			s.log.Trace("task done", logx.String("task", name), logx.Duration("took", took))
		}
		s.record(HistoryItem{Name: name, Started: start, Duration: took, Error: errString(err)})
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: EventTaskFinished, Time: start, Data: TaskEvent{Name: name, Duration: took, Err: err}})
		}
	}()
	return true
}

func (s *Service) record(it HistoryItem) {
	s.tmu.Lock()
	size := s.jobCfg.HistorySize
	s.tmu.Unlock()
	if size <= 0 {
		size = 100
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
