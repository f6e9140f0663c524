package ports

import (
	"context"
	"time"
)

// RecordLocker is the mutual-exclusion primitive serializing concurrent
// mutations on a single transaction id (spec §2, §4.7). Implementations must
// be backed by the same store as transactions so a lock hold survives
// process restarts.
type RecordLocker interface {
	// AcquireLock returns a fencing token and true on success, or ("", false,
	// nil) if the key is already held by a live lock. A non-nil error means
	// the attempt itself failed (infrastructure error), not lock contention.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)

	// ReleaseLock succeeds only when token matches the current holder,
	// fencing against a holder whose TTL already expired.
	ReleaseLock(ctx context.Context, key, token string) (released bool, err error)
}
