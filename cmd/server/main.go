// Command server runs the score service: it rescores the stored event log on
// a schedule, serves the latest scores over HTTP and pushes each completed run
// to WebSocket subscribers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wallet-credit-lab/internal/config"
	"wallet-credit-lab/internal/logging"
	"wallet-credit-lab/internal/pipeline"
	"wallet-credit-lab/internal/reporting"
	"wallet-credit-lab/internal/server"
	"wallet-credit-lab/internal/storage"
	"wallet-credit-lab/internal/storage/backend"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	useMemory      bool
	useFixtures    bool
	migrate        bool
	reportDir      string
	reportInterval time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	flag.DurationVar(&cfg.RescoreInterval, "rescore-interval", cfg.RescoreInterval, "Interval between rescoring runs")

	var opts options
	flag.BoolVar(&opts.useMemory, "use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.BoolVar(&opts.useFixtures, "use-fixtures", false, "Seed the in-memory event store with fixture events")
	flag.BoolVar(&opts.migrate, "migrate", true, "Apply database migrations on startup")
	flag.StringVar(&opts.reportDir, "report-dir", "", "Directory for periodic reports (empty to disable)")
	flag.DurationVar(&opts.reportInterval, "report-interval", 6*time.Hour, "Report generation interval")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if !opts.useMemory && cfg.PostgresDSN == "" {
		logger.Fatal().Msg("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if opts.useFixtures && !opts.useMemory {
		logger.Fatal().Msg("--use-fixtures requires --use-memory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, opts options, logger zerolog.Logger) error {
	stores, err := backend.Open(ctx, backend.Options{
		PostgresDSN:   cfg.PostgresDSN,
		ClickhouseDSN: cfg.ClickhouseDSN,
		RedisURL:      cfg.RedisURL,
		UseMemory:     opts.useMemory,
		Migrate:       opts.migrate,
	})
	if err != nil {
		return err
	}
	defer stores.Close()

	if opts.useFixtures {
		if err := pipeline.LoadFixtures(ctx, stores.Events); err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
		logger.Info().Msg("fixture events loaded")
	}

	hub := server.NewHub(logger)
	rescorer := server.NewRescorer(server.RescorerOptions{
		Events:    stores.Events,
		Scores:    stores.Scores,
		Features:  stores.Features,
		Pipeline:  pipeline.New(cfg.Scoring),
		Publisher: hub,
		Interval:  cfg.RescoreInterval,
		Logger:    logger,
	})
	srv := server.New(server.Options{
		Scores:   stores.Scores,
		Hub:      hub,
		Rescorer: rescorer,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		err := rescorer.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if opts.reportDir != "" {
		g.Go(func() error {
			runReportScheduler(gctx, stores, opts.reportDir, opts.reportInterval, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runReportScheduler writes a report for the latest stored run every interval.
func runReportScheduler(ctx context.Context, stores *backend.Stores, dir string, interval time.Duration, logger zerolog.Logger) {
	log := logger.With().Str("component", "reporter").Logger()
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("report interval must be positive, reports disabled")
		return
	}
	gen := reporting.NewGenerator(stores.Scores, stores.Features)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := gen.Generate(ctx, "")
			if errors.Is(err, storage.ErrNotFound) {
				log.Debug().Msg("no stored run yet, skipping report")
				continue
			}
			if err != nil {
				log.Warn().Err(err).Msg("report generation failed")
				continue
			}
			if err := reporting.WriteAll(dir, report); err != nil {
				log.Warn().Err(err).Msg("write report")
				continue
			}
			log.Info().Str("run_id", report.RunID).Str("dir", dir).Msg("report written")
		}
	}
}
