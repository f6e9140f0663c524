package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an outbox row: the durable record of something the engine wants
// delivered at least once (spec §3, §4.4).
type Event struct {
	ID          uuid.UUID
	Type        string
	Data        json.RawMessage
	Timestamp   time.Time
	Processed   bool
	Error       *string
	RetryCount  int
	NextRetryAt *time.Time
}

// Dispatchable reports whether the event is eligible to be handed to a
// handler right now (spec §4.4 getUnprocessedEvents predicate).
func (e *Event) Dispatchable(now time.Time) bool {
	if e.Processed {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

// Event type constants emitted by the engine (spec §6, non-exhaustive contract).
const (
	EventTransactionCreated    = "transaction.created"
	EventTransactionCompleted  = "transaction.completed"
	EventTransactionFailed     = "transaction.failed"
	EventTransactionRolledBack = "transaction.rolled_back"
	EventTransactionUpdated    = "transaction.updated"
	EventRetryScheduled        = "transaction.retry_scheduled"
	EventRetryStarted          = "transaction.retry_started"
	EventCompletedAfterRetry   = "transaction.completed_after_retry"
	EventFailedAfterRetry      = "transaction.failed_after_retry"
	EventRecoveryStarted       = "transaction.recovery_started"
	EventRecoveryCompleted     = "transaction.recovery_completed"
	EventMovedToDLQ            = "transaction.moved_to_dlq"
	EventReprocessing          = "transaction.reprocessing"
	EventRetryExhausted        = "transaction.retry_exhausted"
)

// NewEvent builds an outbox row ready for EventStore.SaveEvent, marshaling
// payload into Data. A marshal failure (only possible for unsupported types,
// never for the plain structs the engine emits) degrades to an empty body
// rather than panicking.
func NewEvent(eventType string, aggregateID string, payload any) *Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = json.RawMessage(`{}`)
	}
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}
