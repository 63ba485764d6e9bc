package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"giveawaybot/internal/eventbus"
	logx "giveawaybot/pkg/logx"
)

type Config struct {
	Timezone       string // IANA TZ, e.g. "Europe/Kyiv"
	DefaultTimeout time.Duration
	HistorySize    int
}

// Job is the unit of scheduled work.
type Job = func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	running       *atomic.Bool
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// one-shot jobs survive Stop/Start; only their timers are runtime state.
	// tmu also guards runCtx and jobCfg and is never held while waiting on cron.
	tmu     sync.Mutex
	jobCfg  Config
	once    map[string]*onceDef
	onceSeq uint64
	started bool

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// EventTaskFinished is published after every job run; Data is a TaskEvent.
const EventTaskFinished = "task.finished"

// TaskEvent is the payload of task.finished bus events.
type TaskEvent struct {
	Name     string
	Duration time.Duration
	Err      error
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Timezone  string
	Schedules []ScheduleInfo
	Pending   map[string]time.Time
	History   []HistoryItem
}
