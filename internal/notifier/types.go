package notifier

import (
	"errors"
	"time"
)

// Config controls the delivery pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Bus event types.
const (
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDropped = "notifier.dropped"
)

type HistoryItem struct {
	At         time.Time
	Kind       string
	GiveawayID string
	Err        string
}

// NotificationEvent is the Data of every notifier.* bus event.
type NotificationEvent struct {
	Kind       string    `json:"kind"`
	GiveawayID string    `json:"giveaway_id"`
	ChatID     int64     `json:"chat_id"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}
