// Package giveaway implements the drawing lifecycle: records, duration
// parsing, winner selection, the engine that owns countdowns and state
// transitions, and startup recovery.
//
// Every mutation goes through Engine, which serializes it under one lock and
// persists the whole giveaway document before an event is published.
package giveaway
