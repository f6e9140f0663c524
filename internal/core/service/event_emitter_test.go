package service

import (
	"context"
	"testing"

	"github.com/ficmart/txengine/internal/core/domain"
)

func TestEventEmitter_DispatchesToRegisteredHandler(t *testing.T) {
	store := newFakeEventStore()
	emitter := NewEventEmitter(store, testLogger())

	received := make(chan *domain.Event, 1)
	emitter.On(domain.EventTransactionCreated, func(ctx context.Context, ev *domain.Event) {
		received <- ev
	})

	ev := domain.NewEvent(domain.EventTransactionCreated, "tx-1", map[string]string{"id": "tx-1"})
	emitter.Emit(context.Background(), ev)

	select {
	case got := <-received:
		if got.ID != ev.ID {
			t.Errorf("handler received event %v, want %v", got.ID, ev.ID)
		}
	default:
		t.Fatal("handler was not invoked")
	}

	if len(store.events) != 1 {
		t.Errorf("events persisted = %d, want 1", len(store.events))
	}
}

func TestEventEmitter_FilterVetoesDispatch(t *testing.T) {
	store := newFakeEventStore()
	emitter := NewEventEmitter(store, testLogger())

	invoked := false
	emitter.On(domain.EventTransactionCreated, func(ctx context.Context, ev *domain.Event) {
		invoked = true
	})
	emitter.AddFilter(func(ev *domain.Event) bool { return false })

	emitter.Emit(context.Background(), domain.NewEvent(domain.EventTransactionCreated, "tx-1", nil))

	if invoked {
		t.Error("handler invoked despite filter veto")
	}
	if len(store.events) != 1 {
		t.Error("event should still be persisted even when filtered from dispatch")
	}
}

func TestEventEmitter_HandlerPanicDoesNotPropagate(t *testing.T) {
	store := newFakeEventStore()
	emitter := NewEventEmitter(store, testLogger())

	emitter.On(domain.EventTransactionCreated, func(ctx context.Context, ev *domain.Event) {
		panic("boom")
	})

	emitter.Emit(context.Background(), domain.NewEvent(domain.EventTransactionCreated, "tx-1", nil))
}

func TestEventEmitter_ReplayEventReachesWildcardHandlers(t *testing.T) {
	store := newFakeEventStore()
	emitter := NewEventEmitter(store, testLogger())

	invoked := false
	emitter.On("*", func(ctx context.Context, ev *domain.Event) {
		invoked = true
	})

	ev := domain.NewEvent(domain.EventTransactionCreated, "tx-1", nil)
	emitter.ReplayEvent(context.Background(), ev)

	if !invoked {
		t.Error("ReplayEvent did not reach a wildcard handler; a redelivery would never reach fan-out handlers like kafkapublish")
	}
}
