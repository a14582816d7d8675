// Command score runs one batch scoring pass over a lending event log and
// writes the wallet -> credit score mapping.
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
	"wallet-credit-lab/internal/pipeline"
	"wallet-credit-lab/internal/reporting"
	"wallet-credit-lab/internal/storage/backend"
)

type options struct {
	input        string
	output       string
	metadataPath string
	reportDir    string
	fromStore    bool
	persist      bool
	migrate      bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)

	var opts options
	flag.StringVar(&opts.input, "input", "", "Path to the JSON event log")
	flag.StringVar(&opts.output, "output", "wallet_scores.json", "Path of the score mapping to write")
	flag.StringVar(&opts.metadataPath, "metadata", "", "Optional path for run metadata JSON")
	flag.StringVar(&opts.reportDir, "report-dir", "", "Optional directory for the Markdown/CSV/PNG report")
	flag.BoolVar(&opts.fromStore, "from-store", false, "Read events from the event store instead of --input")
	flag.BoolVar(&opts.persist, "persist", false, "Store the run in the score and feature stores")
	flag.BoolVar(&opts.migrate, "migrate", false, "Apply database migrations before running")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	if opts.input == "" && !opts.fromStore {
		logger.Error().Msg("--input is required (or use --from-store)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error().Err(err).Msg("scoring failed")
		stop()
		if errors.Is(err, domain.ErrInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger zerolog.Logger) error {
	var stores *backend.Stores
	if opts.fromStore || opts.persist {
		var err error
		stores, err = backend.Open(ctx, backend.Options{
			PostgresDSN:   cfg.PostgresDSN,
			ClickhouseDSN: cfg.ClickhouseDSN,
			RedisURL:      cfg.RedisURL,
			Migrate:       opts.migrate,
		})
		if err != nil {
			return err
		}
		defer stores.Close()
		if !stores.Persistent {
			logger.Warn().Msg("no --postgres-dsn given; events and scores are held in memory for this process only")
		}
	}

	var raw []domain.RawEvent
	var err error
	if opts.fromStore {
		raw, err = ingestion.LoadStore(ctx, stores.Events)
	} else {
		raw, err = ingestion.LoadFile(opts.input)
	}
	if err != nil {
		return err
	}
	summary := ingestion.Summarize(raw)
	logger.Info().Int("events", summary.Events).Int("wallets", summary.Wallets).Msg("event log loaded")

	res, err := pipeline.New(cfg.Scoring).Run(ctx, raw)
	if err != nil {
		return err
	}
	meta := res.Metadata

	if err := pipeline.WriteScores(opts.output, res.Scores); err != nil {
		return fmt.Errorf("write scores: %w", err)
	}
	logger.Info().
		Str("run_id", meta.RunID).
		Str("path", opts.output).
		Int("wallets", meta.Wallets).
		Int("anomalies", meta.Anomalies).
		Bool("degenerate", meta.Degenerate).
		Msg("scores written")

	if opts.metadataPath != "" {
		if err := pipeline.WriteMetadata(opts.metadataPath, meta); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
	}

	if opts.persist {
		err := pipeline.Persist(ctx, res, stores.Scores, stores.Features)
		switch {
		case errors.Is(err, pipeline.ErrRunExists):
			logger.Info().Str("run_id", meta.RunID).Msg("run already stored")
		case err != nil:
			return fmt.Errorf("persist run: %w", err)
		default:
			logger.Info().Str("run_id", meta.RunID).Msg("run stored")
		}
	}

	// The score mapping is already on disk; report failures are only logged.
	if opts.reportDir != "" {
		report := reporting.NewGenerator(nil, nil).FromResult(res, &summary)
		if err := reporting.WriteAll(opts.reportDir, report); err != nil {
			logger.Warn().Err(err).Str("dir", opts.reportDir).Msg("report generation failed")
		} else {
			logger.Info().Str("dir", opts.reportDir).Msg("report written")
		}
	}
	return nil
}
