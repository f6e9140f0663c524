// Package kafkapublish fans engine events out to Kafka, grounded on
// rebound's kafkaproducer.Producer (single kafka.Writer, LeastBytes
// balancer, RequiredAcks=All) but registered as an EventEmitter handler
// instead of owning a scheduler loop.
package kafkapublish

import (
	"context"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/segmentio/kafka-go"
)

// Publisher writes every event it's handed to a single Kafka topic, with the
// event ID as the message key and the event type in an "event-type" header.
// Events of one transaction carry different keys, so they are not kept on
// one partition and their relative order is not preserved for consumers.
type Publisher struct {
	writer    *kafka.Writer
	topic     string
	log       *slog.Logger
	onFailure func(ctx context.Context, ev *domain.Event, err error)
}

// NewPublisher creates a Kafka publisher from KafkaConfig. Callers should
// check cfg.Brokers before wiring this in; a Publisher built from an empty
// broker list will fail on first Handle call.
func NewPublisher(cfg config.KafkaConfig, topic string, log *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &Publisher{
		writer: writer,
		topic:  topic,
		log:    log.With("component", "kafkapublish"),
	}
}

// OnFailure registers a callback invoked when a publish attempt fails, so
// the caller can route the failure into EventProcessor.Fail and have the
// outbox's own backoff/retry-ceiling govern redelivery instead of dropping
// it silently.
func (p *Publisher) OnFailure(fn func(ctx context.Context, ev *domain.Event, err error)) {
	p.onFailure = fn
}

// Handle is a service.EventHandler: register it with
// EventEmitter.On("*", publisher.Handle) to mirror every emitted event onto
// the configured topic.
func (p *Publisher) Handle(ctx context.Context, ev *domain.Event) {
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.ID.String()),
		Value: ev.Data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish event to kafka", "event_type", ev.Type, "event_id", ev.ID, "error", err)
		if p.onFailure != nil {
			p.onFailure(ctx, ev, err)
		}
	}
}

// Close releases the underlying Kafka writer connection.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
