// Package cli is the cashier-facing shell around the ledger.
package cli

import (
	"io"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/config"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type app struct {
	out    io.Writer
	errOut io.Writer
	open   Opener

	cfg *config.Config
	log *logrus.Logger
}

// NewApp wires every command. Command output goes to out; logs go to errOut.
func NewApp(out, errOut io.Writer, open Opener) *cli.App {
	a := &app{out: out, errOut: errOut, open: open}

	idFlag := func(name, usage string) *cli.Int64Flag {
		return &cli.Int64Flag{Name: name, Usage: usage}
	}
	quantityFlag := func() *cli.Int64Flag {
		return &cli.Int64Flag{Name: "quantity", Aliases: []string{"q"}, Usage: "number of units"}
	}

	return &cli.App{
		Name:      "billing",
		Usage:     "offline store billing: stock, sales, returns and exchanges",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the environment"},
		},
		Before: a.before,
		Commands: []*cli.Command{
			{
				Name:  "product",
				Usage: "manage the catalog",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "add a product with its price and opening stock",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "product name"},
							&cli.StringFlag{Name: "price", Usage: "unit price, e.g. 12.50"},
							&cli.Int64Flag{Name: "stock", Usage: "opening stock"},
						},
						Action: a.addProduct,
					},
					{
						Name:   "list",
						Usage:  "show every product",
						Action: a.listProducts,
					},
				},
			},
			{
				Name:   "sell",
				Usage:  "sell units of a product",
				Flags:  []cli.Flag{idFlag("product-id", "product to sell"), quantityFlag()},
				Action: a.sell,
			},
			{
				Name:   "return",
				Usage:  "return units against an earlier transaction",
				Flags:  []cli.Flag{idFlag("transaction-id", "transaction being returned against"), quantityFlag()},
				Action: a.returnUnits,
			},
			{
				Name:   "exchange",
				Usage:  "replace an earlier sale with a new quantity",
				Flags:  []cli.Flag{idFlag("transaction-id", "sale being exchanged"), quantityFlag()},
				Action: a.exchange,
			},
			{
				Name:   "transactions",
				Usage:  "show the transaction history",
				Action: a.listTransactions,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: a.migrate,
			},
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the event publisher",
				Action: a.serve,
			},
			{
				Name:  "events",
				Usage: "follow ledger events published to Kafka",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "group", Value: "billing-feed", Usage: "consumer group id"},
				},
				Action: a.events,
			},
		},
	}
}

func (a *app) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(cfg.LogLevel, cfg.LogFormat, a.errOut)
	return nil
}

func (a *app) renderer() *Renderer {
	return NewRenderer(a.out, a.cfg.CurrencySymbol)
}

// withRuntime opens a runtime for the duration of fn
func (a *app) withRuntime(c *cli.Context, fn func(rt *Runtime) error) error {
	rt, err := a.open(c.Context, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close runtime")
		}
	}()
	return fn(rt)
}

func (a *app) addProduct(c *cli.Context) error {
	price, err := decimal.NewFromString(c.String("price"))
	if err != nil {
		return describe(domain.ErrInvalidInput, "add", "", 0)
	}

	return a.withRuntime(c, func(rt *Runtime) error {
		p, err := rt.Ledger.AddProduct(c.Context, c.String("name"), price, c.Int64("stock"))
		if err != nil {
			return describe(err, "add", c.String("name"), 0)
		}
		a.renderer().ProductAdded(p)
		return nil
	})
}

func (a *app) listProducts(c *cli.Context) error {
	return a.withRuntime(c, func(rt *Runtime) error {
		products, err := rt.Ledger.ListProducts(c.Context)
		if err != nil {
			return err
		}
		return a.renderer().Products(products)
	})
}

func (a *app) sell(c *cli.Context) error {
	productID := c.Int64("product-id")
	return a.withRuntime(c, func(rt *Runtime) error {
		tr, err := rt.Ledger.Sell(c.Context, productID, c.Int64("quantity"))
		if err != nil {
			var name string
			if p, perr := rt.Ledger.GetProduct(c.Context, productID); perr == nil {
				name = p.Name
			}
			return describe(err, "sell", name, 0)
		}

		p, err := rt.Ledger.GetProduct(c.Context, tr.ProductID)
		if err != nil {
			return err
		}
		a.renderer().Sold(p, tr)
		return nil
	})
}

func (a *app) returnUnits(c *cli.Context) error {
	txID := c.Int64("transaction-id")
	return a.withRuntime(c, func(rt *Runtime) error {
		tr, err := rt.Ledger.Return(c.Context, txID, c.Int64("quantity"))
		if err != nil {
			return describe(err, "return", "", txID)
		}
		a.renderer().Returned(tr)
		return nil
	})
}

func (a *app) exchange(c *cli.Context) error {
	txID := c.Int64("transaction-id")
	return a.withRuntime(c, func(rt *Runtime) error {
		tr, err := rt.Ledger.Exchange(c.Context, txID, c.Int64("quantity"))
		if err != nil {
			return describe(err, "exchange", "", txID)
		}
		a.renderer().Exchanged(tr)
		return nil
	})
}

func (a *app) listTransactions(c *cli.Context) error {
	return a.withRuntime(c, func(rt *Runtime) error {
		txs, err := rt.Ledger.ListTransactions(c.Context)
		if err != nil {
			return err
		}
		products, err := rt.Ledger.ListProducts(c.Context)
		if err != nil {
			return err
		}

		names := make(map[int64]string, len(products))
		for _, p := range products {
			names[p.ID] = p.Name
		}
		return a.renderer().Transactions(txs, names)
	})
}

// migrate relies on the opener applying migrations
func (a *app) migrate(c *cli.Context) error {
	return a.withRuntime(c, func(*Runtime) error {
		a.log.WithFields(logrus.Fields{
			"driver": a.cfg.DBDriver,
			"path":   a.cfg.MigrationsPath,
		}).Info("migrations applied")
		return nil
	})
}
