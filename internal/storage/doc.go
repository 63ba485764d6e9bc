// Package storage persists whole JSON documents by name.
//
// Every driver replaces a document atomically: a reader sees either the
// previous body or the new one, never a partial write. Higher layers own the
// document schema (see internal/giveaway and internal/points).
package storage
