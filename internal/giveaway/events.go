package giveaway

// Event types published on the bus. Data is always an Event value.
const (
	EventCreated       = "giveaway.created"
	EventParticipation = "giveaway.participation_changed"
	EventEnded         = "giveaway.ended"
	EventRerolled      = "giveaway.rerolled"
	EventDeleted       = "giveaway.deleted"

	// Store events carry a StoreEvent.
	EventStoreRetry  = "store.retry"
	EventStoreFailed = "store.failed"
)

// Event is the payload of every giveaway.* bus event. Record is a snapshot
// taken right after the transition.
type Event struct {
	Record  *Record
	Winners []int64

	// Participation changes only.
	UserID int64
	Joined bool

	// Ended events produced by startup recovery or the overdue sweep.
	Recovered bool
}

type StoreEvent struct {
	Op      string
	Attempt int
	Err     string
}
