package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
)

// EventProcessor is the background loop that re-drives undelivered outbox
// rows: it claims GetUnprocessedEvents on a tick, redispatches each through
// the emitter, and marks the result, applying spec §4.4's exponential
// backoff on repeated failure. Grounded on the teacher's ticker-based
// worker loops (worker/reconciler.go), generalized from a status-reconciler
// into an outbox processor.
type EventProcessor struct {
	store       ports.EventStore
	emitter     *EventEmitter
	log         *slog.Logger
	interval    time.Duration
	batchSize   int
	pruneAfter  time.Duration
	pruneEvery  time.Duration
	lastPruneAt time.Time
}

func NewEventProcessor(store ports.EventStore, emitter *EventEmitter, log *slog.Logger, interval time.Duration, batchSize int, pruneAfter, pruneEvery time.Duration) *EventProcessor {
	return &EventProcessor{
		store:      store,
		emitter:    emitter,
		log:        log,
		interval:   interval,
		batchSize:  batchSize,
		pruneAfter: pruneAfter,
		pruneEvery: pruneEvery,
	}
}

// Start runs the tick loop until ctx is canceled, the same shape as the
// teacher's Reconciler.Start.
func (p *EventProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.lastPruneAt = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *EventProcessor) tick(ctx context.Context) {
	events, err := p.store.GetUnprocessedEvents(ctx, time.Now(), p.batchSize)
	if err != nil {
		p.log.Error("failed to load unprocessed events", "error", err)
		return
	}

	for _, ev := range events {
		p.redeliver(ctx, ev)
	}

	if p.pruneEvery > 0 && time.Since(p.lastPruneAt) >= p.pruneEvery {
		p.prune(ctx)
	}
}

// failureFlag is carried on the context passed to handlers during redeliver
// so an adapter's Fail call can veto the unconditional MarkAsProcessed that
// follows, without threading an error return through EventHandler's signature.
type failureFlag struct{ failed bool }

type failureFlagKey struct{}

// redeliver hands ev to the emitter's in-process handlers and marks it
// processed, unless a handler called Fail on it during dispatch (e.g.
// kafkapublish reporting a write error), in which case Fail has already
// scheduled the next attempt or moved it to MarkAsFailed.
func (p *EventProcessor) redeliver(ctx context.Context, ev *domain.Event) {
	flag := &failureFlag{}
	dispatchCtx := context.WithValue(ctx, failureFlagKey{}, flag)

	p.emitter.ReplayEvent(dispatchCtx, ev)

	if flag.failed {
		return
	}
	if err := p.store.MarkAsProcessed(ctx, ev.ID); err != nil {
		p.log.Error("failed to mark event processed", "event_id", ev.ID, "error", err)
	}
}

// Fail records a delivery failure an adapter detected out-of-band (e.g. the
// Kafka publisher's write returning an error), scheduling the next attempt
// with spec §4.4's backoff and escalating past MaxRetries. When called
// synchronously from within a redeliver dispatch, it also vetoes that
// dispatch's pending MarkAsProcessed call.
func (p *EventProcessor) Fail(ctx context.Context, ev *domain.Event, cause error, maxRetries int) error {
	if flag, ok := ctx.Value(failureFlagKey{}).(*failureFlag); ok {
		flag.failed = true
	}

	retryCount := ev.RetryCount + 1
	if retryCount > maxRetries {
		return p.store.MarkAsFailed(ctx, ev.ID, cause.Error())
	}
	if err := p.store.MarkForRetry(ctx, ev.ID, retryCount, cause.Error()); err != nil {
		return err
	}
	return nil
}

func (p *EventProcessor) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.pruneAfter)
	n, err := p.store.PruneProcessedEvents(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune processed events", "error", err)
		return
	}
	if n > 0 {
		p.log.Info("pruned processed events", "count", n, "older_than", cutoff)
	}
	p.lastPruneAt = time.Now()
}
