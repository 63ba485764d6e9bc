package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"giveawaybot/internal/eventbus"
	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/notifier"
	tasksched "giveawaybot/internal/task/scheduler"
	logx "giveawaybot/pkg/logx"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCountsEvents(t *testing.T) {
	m := New(Gauges{})
	rec := &giveaway.Record{ID: "a"}

	m.Observe(eventbus.Event{Type: giveaway.EventCreated, Data: giveaway.Event{Record: rec}})
	m.Observe(eventbus.Event{Type: giveaway.EventParticipation, Data: giveaway.Event{Record: rec, Joined: true}})
	m.Observe(eventbus.Event{Type: giveaway.EventParticipation, Data: giveaway.Event{Record: rec, Joined: false}})
	m.Observe(eventbus.Event{Type: giveaway.EventStoreRetry, Data: giveaway.StoreEvent{Op: "create", Attempt: 1}})
	m.Observe(eventbus.Event{Type: notifier.EventFailed, Data: notifier.NotificationEvent{Kind: giveaway.EventEnded}})
	m.Observe(eventbus.Event{Type: tasksched.EventTaskFinished, Data: tasksched.TaskEvent{Name: "giveaway:a", Duration: time.Millisecond, Err: errors.New("x")}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.giveawayEvents.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.giveawayEvents.WithLabelValues("participation_changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.participation.WithLabelValues("join")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.participation.WithLabelValues("leave")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("retry", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed", giveaway.EventEnded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("giveaway", "error")))
}

func TestHandlerServesGaugesAndAuth(t *testing.T) {
	m := New(Gauges{
		Giveaways:  func() (int, int) { return 2, 5 },
		BusDropped: func() uint64 { return 3 },
	})
	s := NewServer(ServerConfig{Token: "secret"}, m, logx.Nop())
	h := s.handler(ServerConfig{Path: "metrics", Token: "secret"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics?token=secret", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "giveawaybot_giveaway_active 2"), body)
	assert.Contains(t, body, "giveawaybot_giveaway_ended 5")
	assert.Contains(t, body, "giveawaybot_eventbus_dropped_total 3")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rr.Body.String())
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	assert.True(t, isLoopbackAddr("127.0.0.1:9090"))
	assert.True(t, isLoopbackAddr("localhost:9090"))
	assert.False(t, isLoopbackAddr(":9090"))
	assert.False(t, isLoopbackAddr("0.0.0.0:9090"))
}
