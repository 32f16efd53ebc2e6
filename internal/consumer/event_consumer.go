package consumer

import (
	"context"
	"encoding/json"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var ErrUnknownEvent = errors.New("unknown event type")

// MessageReader is satisfied by *kafka.Reader
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler receives each decoded ledger event in topic order
type Handler func(ctx context.Context, ev domain.Event) error

type Consumer struct {
	reader MessageReader
	handle Handler
	log    logrus.FieldLogger
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(reader MessageReader, handle Handler, log logrus.FieldLogger) *Consumer {
	return &Consumer{reader: reader, handle: handle, log: log}
}

// Run reads until ctx is done. Bad messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.WithError(err).Warn("error closing kafka reader")
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.log.WithError(err).Error("error reading message")
		return
	}

	ev, err := Decode(m)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"offset": m.Offset,
			"key":    string(m.Key),
		}).Warn("skipping message")
		return
	}

	if err := c.handle(ctx, ev); err != nil {
		c.log.WithError(err).WithField("event_type", ev.Type()).Error("failed to handle event")
	}
}

// Decode turns a published outbox message back into its ledger event
func Decode(m kafka.Message) (domain.Event, error) {
	var eventType string
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}

	switch eventType {
	case domain.ProductAdded{}.Type():
		var ev domain.ProductAdded
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return nil, errors.Wrapf(err, "parse %s", eventType)
		}
		return ev, nil
	case domain.TransactionRecorded{}.Type():
		var ev domain.TransactionRecorded
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return nil, errors.Wrapf(err, "parse %s", eventType)
		}
		return ev, nil
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "event type %q", eventType)
	}
}
