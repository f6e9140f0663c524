package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/google/uuid"
)

// fakeTransactionStore is an in-memory ports.TransactionStore, the same
// hand-rolled-fake-over-map style as the teacher's MockPaymentRepository.
type fakeTransactionStore struct {
	mu  sync.RWMutex
	txs map[uuid.UUID]*domain.Transaction

	CreateFn    func(ctx context.Context, tx *domain.Transaction) error
	FindStaleFn func(ctx context.Context, statuses []domain.TransactionStatus, olderThan time.Duration, limit int) ([]*domain.Transaction, error)
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{txs: make(map[uuid.UUID]*domain.Transaction)}
}

func (f *fakeTransactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateFn != nil {
		return f.CreateFn(ctx, tx)
	}
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeTransactionStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.txs[id], nil
}

func (f *fakeTransactionStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, tx := range f.txs {
		if tx.IdempotencyKey == key {
			return tx, nil
		}
	}
	return nil, nil
}

func (f *fakeTransactionStore) FindByCustomerID(ctx context.Context, customerID string, filter domain.QueryFilter) ([]*domain.Transaction, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if tx.CustomerID == customerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeTransactionStore) Update(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeTransactionStore) FindStale(ctx context.Context, statuses []domain.TransactionStatus, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	if f.FindStaleFn != nil {
		return f.FindStaleFn(ctx, statuses, olderThan, limit)
	}
	return nil, nil
}

func (f *fakeTransactionStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

// fakeEventStore is an in-memory ports.EventStore.
type fakeEventStore struct {
	mu     sync.Mutex
	events []*domain.Event
}

func newFakeEventStore() *fakeEventStore { return &fakeEventStore{} }

func (f *fakeEventStore) SaveEvent(ctx context.Context, ev *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventStore) GetEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, nil
}

func (f *fakeEventStore) GetUnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Event
	for _, ev := range f.events {
		if ev.Dispatchable(now) {
			out = append(out, ev)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventStore) MarkAsProcessed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			ev.Processed = true
		}
	}
	return nil
}

func (f *fakeEventStore) MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			ev.Processed = true
			ev.Error = &errMsg
		}
	}
	return nil
}

func (f *fakeEventStore) MarkForRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			ev.RetryCount = retryCount
			ev.Error = &errMsg
			next := time.Now().Add(domain.EventRetryDelay(retryCount))
			ev.NextRetryAt = &next
		}
	}
	return nil
}

func (f *fakeEventStore) ResetProcessedFlag(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			ev.Processed = false
		}
	}
	return nil
}

func (f *fakeEventStore) PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*domain.Event
	count := 0
	for _, ev := range f.events {
		if ev.Processed && ev.Error == nil && ev.Timestamp.Before(olderThan) {
			count++
			continue
		}
		kept = append(kept, ev)
	}
	f.events = kept
	return count, nil
}

// fakeRecordLocker is an in-memory ports.RecordLocker.
type fakeRecordLocker struct {
	mu    sync.Mutex
	locks map[string]domain.Lock
}

func newFakeRecordLocker() *fakeRecordLocker {
	return &fakeRecordLocker{locks: make(map[string]domain.Lock)}
}

func (f *fakeRecordLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	if existing, ok := f.locks[key]; ok && !existing.Expired(now) {
		return "", false, nil
	}
	token := uuid.NewString()
	f.locks[key] = domain.Lock{Key: key, Token: token, ExpiresAt: now.Add(ttl)}
	return token, true, nil
}

func (f *fakeRecordLocker) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.locks[key]
	if !ok || existing.Token != token {
		return false, nil
	}
	delete(f.locks, key)
	return true, nil
}

// fakePaymentProvider is an in-memory ports.PaymentProvider.
type fakePaymentProvider struct {
	SubmitFn func(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResult, error)
}

func (f *fakePaymentProvider) Submit(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResult, error) {
	if f.SubmitFn != nil {
		return f.SubmitFn(ctx, req)
	}
	return ports.ProviderResult{Accepted: true, ProviderRef: "prov-" + req.TransactionID}, nil
}

// fakeCustomerLimits is an in-memory ports.CustomerLimits that never rejects
// unless LimitFn is set.
type fakeCustomerLimits struct {
	LimitFn func(ctx context.Context, customerID string, amount domain.Money) error
}

func (f *fakeCustomerLimits) CheckLimit(ctx context.Context, customerID string, amount domain.Money) error {
	if f.LimitFn != nil {
		return f.LimitFn(ctx, customerID, amount)
	}
	return nil
}

// fakeDeadLetterStore is an in-memory ports.DeadLetterStore.
type fakeDeadLetterStore struct {
	mu      sync.Mutex
	entries map[string]*domain.DeadLetterEntry
}

func newFakeDeadLetterStore() *fakeDeadLetterStore {
	return &fakeDeadLetterStore{entries: make(map[string]*domain.DeadLetterEntry)}
}

func (f *fakeDeadLetterStore) Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.TransactionID] = entry
	return nil
}

func (f *fakeDeadLetterStore) Remove(ctx context.Context, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, transactionID)
	return nil
}

func (f *fakeDeadLetterStore) Get(ctx context.Context, transactionID string) (*domain.DeadLetterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[transactionID], nil
}

func (f *fakeDeadLetterStore) List(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.DeadLetterEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeDeadLetterStore) Stats(ctx context.Context) (domain.DeadLetterStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := domain.DeadLetterStats{ByErrorCode: make(map[string]int)}
	for _, e := range f.entries {
		stats.ByErrorCode[e.Error.Code]++
		stats.Total++
	}
	return stats, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLockSvc() *RecordLockerService {
	return NewRecordLockerService(newFakeRecordLocker(), time.Second, testLogger())
}
