// Command ingest appends a JSON event log to the Postgres event store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"wallet-credit-lab/internal/config"
	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/logging"
	"wallet-credit-lab/internal/storage/backend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)

	input := flag.String("input", "", "Path to the JSON event log (required)")
	migrate := flag.Bool("migrate", true, "Apply database migrations before ingesting")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if *input == "" {
		logger.Error().Msg("--input is required")
		os.Exit(2)
	}
	if cfg.PostgresDSN == "" {
		logger.Error().Msg("--postgres-dsn is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg, *input, *migrate, logger); err != nil {
		logger.Error().Err(err).Msg("ingest failed")
		stop()
		if errors.Is(err, domain.ErrInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, input string, migrate bool, logger zerolog.Logger) error {
	raw, err := ingestion.LoadFile(input)
	if err != nil {
		return err
	}

	// Only the event store is used; the cache and feature sink stay closed.
	stores, err := backend.Open(ctx, backend.Options{
		PostgresDSN: cfg.PostgresDSN,
		Migrate:     migrate,
	})
	if err != nil {
		return err
	}
	defer stores.Close()

	res, err := ingestion.Ingest(ctx, stores.Events, raw)
	if err != nil {
		return err
	}

	q := res.Quality
	logger.Info().
		Str("path", input).
		Int("events", res.Events).
		Int("wallets", q.Wallets).
		Int64("first_ts", q.FirstTimestamp).
		Int64("last_ts", q.LastTimestamp).
		Msg("events ingested")
	if len(q.NonEVMWallets) > 0 {
		logger.Warn().Int("wallets", len(q.NonEVMWallets)).Msg("wallet ids that are not EVM addresses")
	}
	for action, n := range q.UnknownActions {
		logger.Warn().Str("action", action).Int("events", n).Msg("unrecognised action counted as other")
	}
	return nil
}
