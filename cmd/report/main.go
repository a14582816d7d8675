// Command report renders the score distribution report for a stored run,
// an event log file or the built-in fixture data.
package main

import (
	"context"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)

	outputDir := flag.String("output-dir", "report", "Output directory for generated files")
	runID := flag.String("run-id", "", "Stored run to report on (default: latest run)")
	input := flag.String("input", "", "Score this event log instead of reading a stored run")
	useFixtures := flag.Bool("use-fixtures", false, "Score the built-in fixture events instead of a database")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	if *input == "" && !*useFixtures && cfg.PostgresDSN == "" {
		logger.Error().Msg("--postgres-dsn is required to report on a stored run (or use --input / --use-fixtures)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	report, err := buildReport(ctx, cfg, *input, *runID, *useFixtures)
	if err != nil {
		logger.Error().Err(err).Msg("report failed")
		stop()
		os.Exit(1)
	}

	if err := reporting.WriteAll(*outputDir, report); err != nil {
		logger.Error().Err(err).Msg("write report")
		stop()
		os.Exit(1)
	}
	logReport(logger, *outputDir, report)
}

func buildReport(ctx context.Context, cfg *config.Config, input, runID string, useFixtures bool) (*reporting.Report, error) {
	if input != "" || useFixtures {
		var raw []domain.RawEvent
		if useFixtures {
			raw = pipeline.FixtureEvents()
		} else {
			var err error
			if raw, err = ingestion.LoadFile(input); err != nil {
				return nil, err
			}
		}
		res, err := pipeline.New(cfg.Scoring).Run(ctx, raw)
		if err != nil {
			return nil, err
		}
		summary := ingestion.Summarize(raw)
		return reporting.NewGenerator(nil, nil).FromResult(res, &summary), nil
	}

	stores, err := backend.Open(ctx, backend.Options{
		PostgresDSN:   cfg.PostgresDSN,
		ClickhouseDSN: cfg.ClickhouseDSN,
		RedisURL:      cfg.RedisURL,
	})
	if err != nil {
		return nil, err
	}
	defer stores.Close()

	return reporting.NewGenerator(stores.Scores, stores.Features).Generate(ctx, runID)
}

func logReport(logger zerolog.Logger, dir string, r *reporting.Report) {
	logger.Info().
		Str("run_id", r.RunID).
		Int("wallets", r.Summary.Wallets).
		Float64("mean_score", r.Summary.MeanScore).
		Str("dir", dir).
		Strs("files", []string{reporting.MarkdownFile, reporting.WalletCSVFile, reporting.BucketCSVFile, reporting.HistogramFile}).
		Msg("report written")
}
