package cache

import "time"

// DefaultMaxAge is the age after which cached data is reported as stale.
const DefaultMaxAge = 24 * time.Hour

// IsStale reports whether lastSynced is older than maxAge. A non-positive
// maxAge means DefaultMaxAge.
func IsStale(lastSynced time.Time, maxAge time.Duration) bool {
	return IsStaleAt(lastSynced, maxAge, time.Now())
}

// IsStaleAt is IsStale evaluated at now. The result flips from false to true
// exactly once, immediately after lastSynced+maxAge.
func IsStaleAt(lastSynced time.Time, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return now.Sub(lastSynced) > maxAge
}
