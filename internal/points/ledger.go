// Package points keeps per-user scores and the role rewards they unlock.
package points

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/storage"
	logx "giveawaybot/pkg/logx"
)

const DocumentName = "points"

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidThreshold = errors.New("threshold must be positive")
	ErrInvalidRole      = errors.New("role name is empty")
	ErrUnknownRole      = errors.New("no such role reward")
	ErrStore            = errors.New("points store error")
)

const (
	EventScoreChanged = "points.score_changed"
	EventRoleGranted  = "points.role_granted"
)

// RoleGranter performs the side effect of awarding a role.
type RoleGranter interface {
	Grant(ctx context.Context, user int64, role string, score int64) error
}

type Reward struct {
	Role      string
	Threshold int64
}

type Entry struct {
	UserID int64
	Score  int64
}

// ScoreChange is the bus payload of EventScoreChanged.
type ScoreChange struct {
	UserID int64
	Delta  int64
	Score  int64
}

// Grant is the bus payload of EventRoleGranted.
type Grant struct {
	UserID int64
	Role   string
	Score  int64
}

type document struct {
	Users       map[string]int64    `json:"users"`
	RoleRewards map[string]int64    `json:"role_rewards"`
	Granted     map[string][]string `json:"granted,omitempty"`
}

func emptyDocument() document {
	return document{Users: map[string]int64{}, RoleRewards: map[string]int64{}, Granted: map[string][]string{}}
}

func (d document) clone() document {
	cp := emptyDocument()
	for k, v := range d.Users {
		cp.Users[k] = v
	}
	for k, v := range d.RoleRewards {
		cp.RoleRewards[k] = v
	}
	for k, v := range d.Granted {
		cp.Granted[k] = slices.Clone(v)
	}
	return cp
}

type grantKey struct {
	user int64
	role string
}

type Ledger struct {
	mu  sync.Mutex
	doc document
	// granting holds grants handed to the granter but not yet recorded.
	granting map[grantKey]bool

	store   storage.Store
	granter RoleGranter
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time
}

func New(store storage.Store, granter RoleGranter, bus eventbus.Bus, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{
		doc:      emptyDocument(),
		granting: map[grantKey]bool{},
		store:    store,
		granter:  granter,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Load reads the points document. A malformed document is copied aside,
// leaves the ledger empty and is reported at error level; only read
// failures are returned.
func (l *Ledger) Load(ctx context.Context) error {
	b, err := l.store.Load(ctx, DocumentName)
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	doc := emptyDocument()
	if err := json.Unmarshal(b, &doc); err != nil {
		l.log.Error("points store is corrupt; starting empty", logx.Err(err))
		l.quarantine(ctx, b)
		return nil
	}
	if doc.Users == nil {
		doc.Users = map[string]int64{}
	}
	if doc.RoleRewards == nil {
		doc.RoleRewards = map[string]int64{}
	}
	if doc.Granted == nil {
		doc.Granted = map[string][]string{}
	}
	for k, v := range doc.Users {
		if v < 0 {
			doc.Users[k] = 0
		}
	}
	l.mu.Lock()
	l.doc = doc
	l.mu.Unlock()
	l.log.Info("points loaded", logx.Int("users", len(doc.Users)), logx.Int("rewards", len(doc.RoleRewards)))
	return nil
}

func (l *Ledger) quarantine(ctx context.Context, body []byte) {
	name := DocumentName + "-corrupt-" + strconv.FormatInt(l.now().Unix(), 10)
	if err := l.store.Save(ctx, name, body); err != nil {
		l.log.Error("quarantine of corrupt points store failed", logx.Err(err))
		return
	}
	l.log.Warn("corrupt points store quarantined", logx.String("document", name))
}

// mutate applies fn to a copy of the document and commits it only if the
// save succeeds. Call with l.mu held.
func (l *Ledger) mutateLocked(ctx context.Context, fn func(d *document)) error {
	next := l.doc.clone()
	fn(&next)
	body, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := l.store.Save(cctx, DocumentName, body); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	l.doc = next
	return nil
}

func userKey(id int64) string { return strconv.FormatInt(id, 10) }

// Add credits amount to user and grants every reward the new score reaches.
// The score saturates at math.MaxInt64.
func (l *Ledger) Add(ctx context.Context, user, amount int64) (int64, []Reward, error) {
	if amount <= 0 {
		return 0, nil, ErrInvalidAmount
	}
	l.mu.Lock()
	var score, delta int64
	err := l.mutateLocked(ctx, func(d *document) {
		prev := d.Users[userKey(user)]
		score = math.MaxInt64
		if prev <= math.MaxInt64-amount {
			score = prev + amount
		}
		delta = score - prev
		d.Users[userKey(user)] = score
	})
	l.mu.Unlock()
	if err != nil {
		return 0, nil, err
	}
	l.publish(EventScoreChanged, ScoreChange{UserID: user, Delta: delta, Score: score})
	return score, l.grantMissing(ctx, user), nil
}

// Remove debits amount from user; the score never drops below zero.
func (l *Ledger) Remove(ctx context.Context, user, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	var score, delta int64
	err := l.mutateLocked(ctx, func(d *document) {
		prev := d.Users[userKey(user)]
		score = max(prev-amount, 0)
		delta = score - prev
		d.Users[userKey(user)] = score
	})
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.publish(EventScoreChanged, ScoreChange{UserID: user, Delta: delta, Score: score})
	return score, nil
}

func (l *Ledger) Score(user int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.Users[userKey(user)]
}

func (l *Ledger) SetReward(ctx context.Context, role string, threshold int64) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return ErrInvalidRole
	}
	if threshold <= 0 {
		return ErrInvalidThreshold
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutateLocked(ctx, func(d *document) { d.RoleRewards[role] = threshold })
}

func (l *Ledger) RemoveReward(ctx context.Context, role string) error {
	role = strings.TrimSpace(role)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.doc.RoleRewards[role]; !ok {
		return ErrUnknownRole
	}
	return l.mutateLocked(ctx, func(d *document) { delete(d.RoleRewards, role) })
}

// Rewards lists role rewards by ascending threshold.
func (l *Ledger) Rewards() []Reward {
	l.mu.Lock()
	out := make([]Reward, 0, len(l.doc.RoleRewards))
	for role, th := range l.doc.RoleRewards {
		out = append(out, Reward{Role: role, Threshold: th})
	}
	l.mu.Unlock()
	slices.SortFunc(out, func(a, b Reward) int {
		if c := cmp.Compare(a.Threshold, b.Threshold); c != 0 {
			return c
		}
		return strings.Compare(a.Role, b.Role)
	})
	return out
}

// Top returns the n highest scores, ties broken by user id.
func (l *Ledger) Top(n int) []Entry {
	l.mu.Lock()
	out := make([]Entry, 0, len(l.doc.Users))
	for k, v := range l.doc.Users {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{UserID: id, Score: v})
	}
	l.mu.Unlock()
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CheckRoles grants every missing reward for every user and reports how
// many grants succeeded.
func (l *Ledger) CheckRoles(ctx context.Context) int {
	l.mu.Lock()
	users := make([]int64, 0, len(l.doc.Users))
	for k := range l.doc.Users {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			users = append(users, id)
		}
	}
	l.mu.Unlock()
	slices.Sort(users)

	total := 0
	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		total += len(l.grantMissing(ctx, u))
	}
	return total
}

// grantMissing awards rewards reached by user's score that were not granted
// yet. Granter failures are logged and retried on the next check. A grant
// already in progress elsewhere is skipped.
func (l *Ledger) grantMissing(ctx context.Context, user int64) []Reward {
	if l.granter == nil {
		return nil
	}
	l.mu.Lock()
	key := userKey(user)
	score := l.doc.Users[key]
	var due []Reward
	for role, th := range l.doc.RoleRewards {
		gk := grantKey{user: user, role: role}
		if score >= th && !slices.Contains(l.doc.Granted[key], role) && !l.granting[gk] {
			l.granting[gk] = true
			due = append(due, Reward{Role: role, Threshold: th})
		}
	}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		for _, r := range due {
			delete(l.granting, grantKey{user: user, role: r.Role})
		}
		l.mu.Unlock()
	}()
	slices.SortFunc(due, func(a, b Reward) int { return cmp.Compare(a.Threshold, b.Threshold) })

	var granted []Reward
	for _, r := range due {
		if err := l.granter.Grant(ctx, user, r.Role, score); err != nil {
			l.log.Warn("role grant failed", logx.Int64("user", user), logx.String("role", r.Role), logx.Err(err))
			continue
		}
		granted = append(granted, r)
	}
	if len(granted) == 0 {
		return nil
	}

	record := func(d *document) {
		for _, r := range granted {
			if !slices.Contains(d.Granted[key], r.Role) {
				d.Granted[key] = append(d.Granted[key], r.Role)
			}
		}
	}
	l.mu.Lock()
	err := l.mutateLocked(ctx, record)
	if err != nil {
		// kept in memory so this process does not grant again; the next
		// successful save writes it out
		record(&l.doc)
	}
	l.mu.Unlock()
	if err != nil {
		l.log.Error("role grants not persisted", logx.Int64("user", user), logx.Err(err))
	}
	for _, r := range granted {
		l.log.Info("role granted", logx.Int64("user", user), logx.String("role", r.Role), logx.Int64("score", score))
		l.publish(EventRoleGranted, Grant{UserID: user, Role: r.Role, Score: score})
	}
	return granted
}

func (l *Ledger) publish(typ string, data any) {
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
