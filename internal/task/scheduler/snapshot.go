package scheduler

import (
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{Timezone: s.cfg.Timezone}
	loc := s.loc
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out.Schedules = append(out.Schedules, it)
	}
	s.mu.Unlock()
	if out.Timezone == "" {
		if loc == nil {
			loc = time.Local
		}
		out.Timezone = loc.String()
	}

	s.tmu.Lock()
	out.Pending = make(map[string]time.Time, len(s.once))
	for name, d := range s.once {
		out.Pending[name] = d.at
	}
	s.tmu.Unlock()

	s.hmu.Lock()
	out.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}
