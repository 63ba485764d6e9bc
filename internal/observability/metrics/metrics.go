// Package metrics exports Prometheus counters derived from bus events and
// serves them over HTTP.
package metrics

import (
	"context"
	"strings"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/notifier"
	"giveawaybot/internal/points"
	tasksched "giveawaybot/internal/task/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "giveawaybot"

// Gauges are sampled at scrape time. Nil funcs are skipped.
type Gauges struct {
	Giveaways  func() (active, ended int)
	BusDropped func() uint64
}

type Metrics struct {
	reg *prometheus.Registry

	giveawayEvents *prometheus.CounterVec
	participation  *prometheus.CounterVec
	storeOps       *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	tasks          *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	scoreChanges   prometheus.Counter
	roleGrants     *prometheus.CounterVec
}

func New(g Gauges) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		giveawayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "giveaway", Name: "events_total",
			Help: "Giveaway lifecycle events by type.",
		}, []string{"type"}),
		participation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "giveaway", Name: "participation_total",
			Help: "Participation toggles by direction.",
		}, []string{"action"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "problems_total",
			Help: "Giveaway store retries and final failures by operation.",
		}, []string{"result", "op"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "deliveries_total",
			Help: "Chat deliveries by result and event kind.",
		}, []string{"result", "kind"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "runs_total",
			Help: "Scheduled job runs by task group and result.",
		}, []string{"task", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "run_seconds",
			Help:    "Scheduled job run time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"task"}),
		scoreChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "points", Name: "score_changes_total",
			Help: "Score changes applied to the points ledger.",
		}),
		roleGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "points", Name: "role_grants_total",
			Help: "Role rewards granted by role.",
		}, []string{"role"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.giveawayEvents, m.participation, m.storeOps, m.notifications,
		m.tasks, m.taskDuration, m.scoreChanges, m.roleGrants,
	)

	if g.Giveaways != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "giveaway", Name: "active",
				Help: "Giveaways currently collecting participants.",
			}, func() float64 { a, _ := g.Giveaways(); return float64(a) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "giveaway", Name: "ended",
				Help: "Ended giveaways kept for re-rolls.",
			}, func() float64 { _, e := g.Giveaways(); return float64(e) }),
		)
	}
	if g.BusDropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "eventbus", Name: "dropped_total",
			Help: "Event deliveries skipped because a subscriber was full.",
		}, func() float64 { return float64(g.BusDropped()) }))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Run counts bus events until ctx ends or the subscription closes.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	events, unsub := bus.Subscribe(1024, "giveaway.", "store.", "notifier.", "task.", "points.")
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Observe(ev)
		}
	}
}

// Observe records one bus event.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch data := ev.Data.(type) {
	case giveaway.Event:
		m.giveawayEvents.WithLabelValues(strings.TrimPrefix(ev.Type, "giveaway.")).Inc()
		if ev.Type == giveaway.EventParticipation {
			action := "leave"
			if data.Joined {
				action = "join"
			}
			m.participation.WithLabelValues(action).Inc()
		}
	case giveaway.StoreEvent:
		m.storeOps.WithLabelValues(strings.TrimPrefix(ev.Type, "store."), data.Op).Inc()
	case notifier.NotificationEvent:
		m.notifications.WithLabelValues(strings.TrimPrefix(ev.Type, "notifier."), data.Kind).Inc()
	case tasksched.TaskEvent:
		group := taskGroup(data.Name)
		result := "ok"
		if data.Err != nil {
			result = "error"
		}
		m.tasks.WithLabelValues(group, result).Inc()
		m.taskDuration.WithLabelValues(group).Observe(data.Duration.Seconds())
	case points.ScoreChange:
		m.scoreChanges.Inc()
	case points.Grant:
		m.roleGrants.WithLabelValues(data.Role).Inc()
	}
}

// taskGroup drops the per-item suffix so countdown timers share one label.
func taskGroup(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return name
}
