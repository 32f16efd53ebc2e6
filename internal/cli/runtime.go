package cli

import (
	"context"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/cache"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/config"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/ledger"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/repository"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Runtime is everything a command needs once configuration is loaded
type Runtime struct {
	Store  repository.Store
	Ledger *ledger.Ledger

	closers []func() error
}

// Opener builds a Runtime; tests swap it for an in-memory one
type Opener func(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Runtime, error)

// Open connects to the configured database, applies migrations and
// optionally puts a Redis catalog cache in front of the ledger.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Runtime, error) {
	repo, err := repository.NewRepository(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	rt := &Runtime{Store: repo, closers: []func() error{repo.Close}}

	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		rt.Close()
		return nil, errors.Wrap(err, "migrate store")
	}

	opts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.RequireSaleReference(cfg.RequireSaleReference),
		ledger.CheckExchangeAfterRestore(cfg.ExchangeCheckAfterRestore),
	}

	if cfg.CacheEnabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unavailable, catalog cache disabled")
			client.Close()
		} else {
			opts = append(opts, ledger.WithCache(cache.NewRedisCache(client, cfg.CacheTTL)))
			rt.closers = append(rt.closers, client.Close)
		}
	}

	rt.Ledger = ledger.New(repo, opts...)
	return rt, nil
}

// Close releases resources in reverse order of acquisition
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
