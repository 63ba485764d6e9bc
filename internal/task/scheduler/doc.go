// Package scheduler triggers jobs on cron specs, fixed intervals and one-shot
// deadlines. Jobs run on their own goroutine with a timeout; a recurring job
// whose previous run is still in flight is skipped.
package scheduler
