package domain

import "time"

// Lock is the mutual-exclusion row RecordLocker hands out: one non-expired
// row per key, with a fencing token that must match on release (spec §4.7).
type Lock struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the lock is no longer valid as of now.
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
