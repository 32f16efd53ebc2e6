package publisher

import (
	"context"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const batchSize = 100

// EventSource is the part of the store the poller drains
type EventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	eventTick time.Duration
	source    EventSource
	writer    MessageWriter
	log       logrus.FieldLogger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same product, same partition
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(source EventSource, writer MessageWriter, log logrus.FieldLogger, interval time.Duration) *OutboxPoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxPoller{
		eventTick: interval,
		source:    source,
		writer:    writer,
		log:       log,
	}
}

// Run publishes pending events every tick until ctx is done
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()

	p.log.WithField("interval", p.eventTick.String()).Info("outbox poller started")
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			p.log.Info("outbox poller stopped")
			return
		}
	}
}

// Close releases the underlying writer
func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents returns how many events were published and marked.
// It stops at the first publish failure so later events for the same product
// are not delivered ahead of it.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.source.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to fetch outbox events")
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.WithError(err).WithField("event_id", event.ID).Error("failed to publish event")
			return published
		}

		// a failed mark means the event goes out again next tick
		if err := p.source.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.WithError(err).WithField("event_id", event.ID).Error("failed to mark event as processed")
			continue
		}
		published++
	}

	if published > 0 {
		p.log.WithField("count", published).Debug("outbox events published")
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
