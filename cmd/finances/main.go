package main

import (
	"context"
	"embed"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/finances/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))

	app := &cli.App{
		Name:   "finances",
		Usage:  "investment portfolio tracker",
		Action: func(c *cli.Context) error { return serve(c.Context, cfg) },
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run migrations, background workers and the HTTP API",
				Action: func(c *cli.Context) error { return serve(c.Context, cfg) },
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: func(c *cli.Context) error { return migrate(c.Context, cfg) },
			},
			{
				Name:  "refresh-prices",
				Usage: "refresh catalog prices from the market data providers",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stale", Usage: "only refresh prices older than QUOTE_STALE_THRESHOLD"},
				},
				Action: func(c *cli.Context) error { return refreshPrices(c.Context, cfg, c.Bool("stale")) },
			},
			{
				Name:      "resolve",
				Usage:     "look symbols up, fetching and storing unknown ones",
				ArgsUsage: "SYMBOL...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "region", Usage: "market region", Value: cfg.QuoteRegion},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("at least one symbol is required", 2)
					}
					return resolve(c.Context, cfg, c.Args().Slice(), c.String("region"))
				},
			},
			{
				Name:  "export",
				Usage: "export a user's portfolio to an XLSX file or Google Sheets",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "user id", Required: true},
					&cli.StringFlag{Name: "out", Usage: "output file (default portfolio-<date>.xlsx)"},
					&cli.BoolFlag{Name: "sheets", Usage: "write to the configured Google spreadsheet"},
				},
				Action: func(c *cli.Context) error {
					return exportPortfolio(c.Context, cfg, c.String("user"), c.String("out"), c.Bool("sheets"))
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
