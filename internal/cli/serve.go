package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	h "github.com/Debojyoti-Gho/offline-billing-app/internal/http"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/publisher"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func (a *app) serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.withRuntime(c, func(rt *Runtime) error {
		if a.cfg.PublisherEnabled() {
			writer := publisher.NewKafkaWriter(a.cfg.KafkaTopic, a.cfg.KafkaBrokers...)
			poller := publisher.NewOutboxPoller(rt.Store, writer, a.log, a.cfg.OutboxInterval)
			defer poller.Close()
			go poller.Run(ctx)
		} else {
			a.log.Info("KAFKA_BROKERS not set, outbox publisher disabled")
		}

		srv := &http.Server{
			Addr:         ":" + a.cfg.HTTPPort,
			Handler:      h.NewRouter(rt.Ledger, a.log, a.cfg.RequestTimeout),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: a.cfg.RequestTimeout + 5*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.WithField("port", a.cfg.HTTPPort).Info("billing API starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.log.Info("server exited")
		return nil
	})
}
