package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/ficmart/txengine/internal/core/service"
	"github.com/google/uuid"
)

// fakeStore is a minimal in-memory ports.TransactionStore, the same
// map-backed fake style used by core/service's own tests, kept local since
// those fakes are unexported to their package.
type fakeStore struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*domain.Transaction
}

func newFakeStore() *fakeStore { return &fakeStore{txs: make(map[uuid.UUID]*domain.Transaction)} }

func (f *fakeStore) Create(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[id], nil
}

func (f *fakeStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.IdempotencyKey == key {
			return tx, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByCustomerID(ctx context.Context, customerID string, filter domain.QueryFilter) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if tx.CustomerID == customerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) Update(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeStore) FindStale(ctx context.Context, statuses []domain.TransactionStatus, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

type fakeProvider struct{}

func (fakeProvider) Submit(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResult, error) {
	return ports.ProviderResult{Accepted: true, ProviderRef: "prov-" + req.TransactionID}, nil
}

type fakeLimits struct{}

func (fakeLimits) CheckLimit(ctx context.Context, customerID string, amount domain.Money) error {
	return nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]string)} }

func (f *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	f.held[key] = token
	return token, true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] != token {
		return false, nil
	}
	delete(f.held, key)
	return true, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestRouter() *http.ServeMux {
	store := newFakeStore()
	emitter := service.NewEventEmitter(&nullEventStore{}, testLogger())
	lockSvc := service.NewRecordLockerService(newFakeLocker(), time.Minute, testLogger())
	manager := service.NewTransactionManager(store, fakeProvider{}, fakeLimits{}, lockSvc, emitter)
	queue := service.NewRetryQueue()
	policy := domain.RetryPolicy{MaxAttempts: 3, Backoff: domain.BackoffFixed, InitialDelay: time.Minute, MaxDelay: time.Hour}
	retryManager := service.NewRetryManager(store, queue, policy, lockSvc, emitter, testLogger())

	txHandler := NewTransactionHandler(manager, retryManager)
	mux := http.NewServeMux()
	txHandler.RegisterRoutes(mux)
	return mux
}

// nullEventStore gives EventEmitter somewhere to persist without depending
// on core/service's own unexported test fakes.
type nullEventStore struct{}

func (n *nullEventStore) SaveEvent(ctx context.Context, ev *domain.Event) error { return nil }
func (n *nullEventStore) GetEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return nil, nil
}
func (n *nullEventStore) GetUnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]*domain.Event, error) {
	return nil, nil
}
func (n *nullEventStore) MarkAsProcessed(ctx context.Context, id uuid.UUID) error { return nil }
func (n *nullEventStore) MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return nil
}
func (n *nullEventStore) MarkForRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	return nil
}
func (n *nullEventStore) ResetProcessedFlag(ctx context.Context, id uuid.UUID) error { return nil }
func (n *nullEventStore) PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func postJSON(mux http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandleBegin_RequiresIdempotencyKey(t *testing.T) {
	mux := newTestRouter()
	w := postJSON(mux, http.MethodPost, "/transactions", beginRequest{
		Type: "PAYMENT", AmountMinor: 100, Currency: "USD", CustomerID: "c1", PaymentMethodID: "pm1",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleBegin_CreatesAndReplaysTransaction(t *testing.T) {
	mux := newTestRouter()
	req := beginRequest{Type: "PAYMENT", AmountMinor: 500, Currency: "USD", CustomerID: "c1", PaymentMethodID: "pm1"}
	headers := map[string]string{"Idempotency-Key": "idem-key-0001"}

	w1 := postJSON(mux, http.MethodPost, "/transactions", req, headers)
	if w1.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w1.Code, w1.Body.String())
	}
	var created struct{ Data domain.Transaction }
	if err := json.Unmarshal(w1.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w2 := postJSON(mux, http.MethodPost, "/transactions", req, headers)
	if w2.Code != http.StatusCreated {
		t.Fatalf("expected replay to return 201, got %d", w2.Code)
	}
	var replayed struct{ Data domain.Transaction }
	json.Unmarshal(w2.Body.Bytes(), &replayed)
	if replayed.Data.ID != created.Data.ID {
		t.Errorf("replay returned a different transaction: %v != %v", replayed.Data.ID, created.Data.ID)
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	mux := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/transactions/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleManualRetry_RejectsNonFailedTransaction(t *testing.T) {
	mux := newTestRouter()
	req := beginRequest{Type: "PAYMENT", AmountMinor: 500, Currency: "USD", CustomerID: "c1", PaymentMethodID: "pm1"}
	w1 := postJSON(mux, http.MethodPost, "/transactions", req, map[string]string{"Idempotency-Key": "idem-key-0002"})
	if w1.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w1.Code, w1.Body.String())
	}
	var created struct{ Data domain.Transaction }
	json.Unmarshal(w1.Body.Bytes(), &created)

	w2 := postJSON(mux, http.MethodPost, "/transactions/"+created.Data.ID.String()+"/retry", nil, nil)
	if w2.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a non-FAILED transaction, got %d: %s", w2.Code, w2.Body.String())
	}
}
