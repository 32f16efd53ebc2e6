package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/consumer"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// events follows the ledger topic and prints one line per event
func (a *app) events(c *cli.Context) error {
	if !a.cfg.PublisherEnabled() {
		return errors.New("KAFKA_BROKERS is not set")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := consumer.NewKafkaReader(a.cfg.KafkaTopic, c.String("group"), a.cfg.KafkaBrokers...)
	feed := consumer.NewConsumer(reader, func(_ context.Context, ev domain.Event) error {
		return a.renderer().Event(ev)
	}, a.log)
	defer feed.Close()

	feed.Run(ctx)
	return nil
}

func (r *Renderer) Event(ev domain.Event) error {
	var err error
	switch e := ev.(type) {
	case domain.ProductAdded:
		_, err = fmt.Fprintf(r.out, "Product #%d '%s' added: %d in stock at %s\n",
			e.ProductID, e.Name, e.Stock, r.Money(e.Price))
	case domain.TransactionRecorded:
		_, err = fmt.Fprintf(r.out, "%s #%d: product %d x %d = %s (stock %d)\n",
			e.Kind, e.TransactionID, e.ProductID, e.Quantity, r.Money(e.TotalPrice), e.StockAfter)
	default:
		_, err = fmt.Fprintf(r.out, "%s %s\n", ev.Type(), ev.AggregateID())
	}
	return err
}
