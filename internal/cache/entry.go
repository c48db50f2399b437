// Package cache keeps the last successful server responses in a key-value
// store so they can be shown when the server is unreachable.
//
// Every value is stored as a JSON Entry holding the payload and a small
// metadata block (sync time and schema version). Entries never expire; age is
// reported through the staleness helpers and left to the caller to present.
package cache

import "time"

// SchemaVersion is stamped on every entry written by this package.
const SchemaVersion = "1.0.0"

// Metadata describes when an entry was written and by which schema.
type Metadata struct {
	LastSynced int64  `json:"lastSynced"` // epoch milliseconds
	Version    string `json:"version"`
}

// SyncedAt returns LastSynced as a time.
func (m Metadata) SyncedAt() time.Time {
	return time.UnixMilli(m.LastSynced)
}

// IsStale reports whether the entry is older than maxAge at now.
func (m Metadata) IsStale(maxAge time.Duration, now time.Time) bool {
	return IsStaleAt(m.SyncedAt(), maxAge, now)
}

// Entry is the persisted envelope around a payload.
type Entry[T any] struct {
	Data     T        `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// NewMetadata returns metadata for a write happening at now.
func NewMetadata(now time.Time, version string) Metadata {
	return Metadata{LastSynced: now.UnixMilli(), Version: version}
}
