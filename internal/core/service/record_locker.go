package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
)

// RecordLockerService wraps a ports.RecordLocker with the default TTL and
// logging the rest of the engine expects, so callers don't each pick their
// own TTL. The locking semantics themselves (fencing token, expiry) live in
// the adapter; this is policy, not mechanism.
type RecordLockerService struct {
	locker     ports.RecordLocker
	defaultTTL time.Duration
	log        *slog.Logger
}

func NewRecordLockerService(locker ports.RecordLocker, defaultTTL time.Duration, log *slog.Logger) *RecordLockerService {
	return &RecordLockerService{locker: locker, defaultTTL: defaultTTL, log: log}
}

// WithLock runs fn while holding key, releasing it unconditionally on
// return. Contention is reported to the caller rather than retried, per
// spec §4.7 (acquireLock returns acquired=false rather than blocking).
func (s *RecordLockerService) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, acquired, err := s.locker.AcquireLock(ctx, key, s.defaultTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return domain.NewLockHeldError(key)
	}
	defer func() {
		if _, err := s.locker.ReleaseLock(ctx, key, token); err != nil {
			s.log.Warn("failed to release lock", "key", key, "error", err)
		}
	}()
	return fn(ctx)
}
