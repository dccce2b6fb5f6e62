package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-distribution/internal/app"
	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/reporting"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	openPool := func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.New(ctx, cfg.PGDSN, 2)
	}
	env := &cli.Env{
		Out: os.Stdout,
		Migrate: func(ctx context.Context) error {
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(ctx, pool)
		},
		Integrity: func(ctx context.Context) (cli.Checker, func(), error) {
			pool, err := openPool(ctx)
			if err != nil {
				return nil, nil, err
			}
			return integrity.NewService(integrity.NewPgRepository(pool), nil, logger), pool.Close, nil
		},
		Jobs: func() (*cli.JobsCLI, error) {
			return cli.NewJobsCLI(cfg.RedisAddr), nil
		},
		Cache: func(ctx context.Context) (cli.CacheBumper, func(), error) {
			client, err := cache.New(ctx, cfg.RedisAddr)
			if err != nil {
				return nil, nil, err
			}
			return reporting.NewCache(client, cfg.ReportCacheTTL), func() { _ = client.Close() }, nil
		},
	}

	if err := cli.NewRootCommand(env).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrDriftFound) {
			logger.Error("command failed", slog.Any("error", err))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
