// Package notifier renders giveaway lifecycle events as chat messages.
//
// The service subscribes to giveaway.* events on the bus and turns each one
// into a delivery job: post the giveaway message with its buttons, edit the
// participant count, switch the message to the ended state, announce winners,
// or remove the message after a delete.
//
// # Ordering
//
// Jobs are sharded by giveaway ID so every event of one giveaway is handled
// by the same worker, in publish order. A participant count edit is skipped
// when a newer one for the same giveaway is already queued.
//
// # Delivery
//
// Sends share one rate limiter and are retried with exponential backoff and
// jitter. Failures are logged and published as notifier.failed; they never
// reach the engine.
package notifier
