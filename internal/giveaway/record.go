package giveaway

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Record is one persisted giveaway. Engine owns every live Record; callers
// only ever see clones.
type Record struct {
	ID           string  `json:"id"`
	Prize        string  `json:"prize"`
	WinnerCount  int     `json:"winner_count"`
	Participants []int64 `json:"participants"`
	EndTime      int64   `json:"end_time"`
	Ended        bool    `json:"ended"`
	Winners      []int64 `json:"winners,omitempty"`

	HostID    int64  `json:"host_id"`
	HostName  string `json:"host_name,omitempty"`
	ChatID    int64  `json:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	MessageID int    `json:"message_id,omitempty"`

	Flavor    string `json:"flavor,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Host identifies the organizer and where the drawing was opened.
type Host struct {
	UserID   int64
	Name     string
	ChatID   int64
	ThreadID int
}

func (r *Record) End() time.Time { return time.Unix(r.EndTime, 0) }

// Overdue reports an active record whose deadline has passed.
func (r *Record) Overdue(now time.Time) bool {
	return !r.Ended && !now.Before(r.End())
}

func (r *Record) Has(user int64) bool { return slices.Contains(r.Participants, user) }

// toggle flips membership and reports whether user is now a participant.
func (r *Record) toggle(user int64) bool {
	if i := slices.Index(r.Participants, user); i >= 0 {
		r.Participants = slices.Delete(r.Participants, i, i+1)
		return false
	}
	r.Participants = append(r.Participants, user)
	return true
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Participants = slices.Clone(r.Participants)
	cp.Winners = slices.Clone(r.Winners)
	return &cp
}

// normalize drops duplicate participants and reports whether the record
// is usable: an ID matching its key, at least one winner and a deadline.
func (r *Record) normalize(id string) bool {
	if r.ID == "" {
		r.ID = id
	}
	if r.ID != id || r.WinnerCount < 1 || r.EndTime == 0 {
		return false
	}
	seen := make(map[int64]struct{}, len(r.Participants))
	out := r.Participants[:0]
	for _, p := range r.Participants {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	r.Participants = out
	if r.Participants == nil {
		r.Participants = []int64{}
	}
	return true
}

func validatePrize(prize string) (string, error) {
	p := strings.TrimSpace(prize)
	if utf8.RuneCountInString(p) < 2 {
		return "", ErrInvalidPrize
	}
	return p, nil
}

// Stats is the read-only view behind the "my chances" button.
type Stats struct {
	Participants int
	WinnerCount  int
	Joined       bool
	Ended        bool
	Remaining    time.Duration
	// Chance is the probability of winning for one participant, in [0,1].
	Chance float64
}

func statsOf(r *Record, user int64, now time.Time) Stats {
	st := Stats{
		Participants: len(r.Participants),
		WinnerCount:  r.WinnerCount,
		Joined:       r.Has(user),
		Ended:        r.Ended,
	}
	if !r.Ended {
		st.Remaining = max(r.End().Sub(now), 0)
	}
	st.Chance = float64(r.WinnerCount) / float64(max(1, len(r.Participants)))
	if st.Chance > 1 {
		st.Chance = 1
	}
	return st
}
