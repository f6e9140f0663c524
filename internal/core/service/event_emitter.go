package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
)

// EventHandler receives every event that passes the emitter's filters. A
// handler's own delivery durability (e.g. kafkapublish) is its concern, not
// the emitter's.
type EventHandler func(ctx context.Context, ev *domain.Event)

// EventFilter can veto an event before it reaches handlers (spec §4.5
// addFilter/removeFilter).
type EventFilter func(ev *domain.Event) bool

// EventEmitter persists every event to the durable outbox and fans it out
// in-process to registered handlers, grounded on the teacher's absence of
// an event bus combined with zenithpay-retry's webhook notifier fan-out
// shape, generalized to spec §4.4/§4.5's on/addFilter surface. Filters can
// only be added; there is no method to remove one.
type EventEmitter struct {
	store ports.EventStore
	log   *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]EventHandler
	filters  []EventFilter
}

func NewEventEmitter(store ports.EventStore, log *slog.Logger) *EventEmitter {
	return &EventEmitter{
		store:    store,
		log:      log,
		handlers: make(map[string][]EventHandler),
	}
}

// On registers handler for eventType. Pass "*" to receive every event type,
// the convention the teacher's config layer uses for wildcard overrides.
func (e *EventEmitter) On(eventType string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
}

// AddFilter registers a predicate that must pass for any event to be
// dispatched; filters apply before persistence is skipped (persistence
// always happens — filters only gate in-process dispatch).
func (e *EventEmitter) AddFilter(f EventFilter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = append(e.filters, f)
}

// Emit persists ev to the outbox and, if it passes every registered filter,
// dispatches it synchronously to matching handlers. Handler panics/errors
// never fail Emit — delivery failures are the outbox's job to retry, not
// the caller's.
func (e *EventEmitter) Emit(ctx context.Context, ev *domain.Event) {
	if err := e.store.SaveEvent(ctx, ev); err != nil {
		e.log.Error("failed to persist event", "event_type", ev.Type, "error", err)
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, f := range e.filters {
		if !f(ev) {
			return
		}
	}

	for _, h := range e.handlers[ev.Type] {
		e.dispatch(ctx, h, ev)
	}
	for _, h := range e.handlers["*"] {
		e.dispatch(ctx, h, ev)
	}
}

func (e *EventEmitter) dispatch(ctx context.Context, h EventHandler, ev *domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event handler panicked", "event_type", ev.Type, "panic", r)
		}
	}()
	h(ctx, ev)
}

// ReplayEvent re-dispatches a previously stored event to its handlers
// without re-persisting it, used by EventProcessor's redelivery loop. Must
// reach the same handler set as
// Emit, including wildcard subscribers, or a redelivered event silently
// stops reaching them after the first attempt.
func (e *EventEmitter) ReplayEvent(ctx context.Context, ev *domain.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, h := range e.handlers[ev.Type] {
		e.dispatch(ctx, h, ev)
	}
	for _, h := range e.handlers["*"] {
		e.dispatch(ctx, h, ev)
	}
}
