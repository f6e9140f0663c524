package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RetryQueue is an in-process timer per pending retry (spec §4.6), grounded
// on the teacher's goroutine-per-ticker worker pattern but keyed per
// transaction rather than a single shared ticker, so canceling one retry
// never disturbs another's schedule.
type RetryQueue struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewRetryQueue() *RetryQueue {
	return &RetryQueue{timers: make(map[uuid.UUID]*time.Timer)}
}

// Schedule arms a timer that fires fn after delay. Scheduling again for the
// same id replaces the previous timer.
func (q *RetryQueue) Schedule(id uuid.UUID, delay time.Duration, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.timers[id]; ok {
		existing.Stop()
	}
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, id)
		q.mu.Unlock()
		fn()
	})
}

// Cancel stops id's timer, if any, without firing fn.
func (q *RetryQueue) Cancel(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}

// Len reports the number of outstanding timers, backing RetryManager's
// getRetryStats.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}
