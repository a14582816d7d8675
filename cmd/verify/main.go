// Command verify checks that scoring is reproducible. With --input it scores
// the same event log repeatedly and compares the output bytes; otherwise it
// replays a stored run from the event store and compares every wallet.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wallet-credit-lab/internal/config"
	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/logging"
	"wallet-credit-lab/internal/pipeline"
	"wallet-credit-lab/internal/storage/backend"
	"wallet-credit-lab/internal/verification"
)

// maxListed caps the divergent wallets printed in text mode.
const maxListed = 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)

	input := flag.String("input", "", "Event log to check for run-to-run determinism")
	runs := flag.Int("runs", 2, "Number of runs for the determinism check")
	runID := flag.String("run-id", "", "Stored run to replay (default: latest run)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	if *input == "" && cfg.PostgresDSN == "" {
		logger.Error().Msg("--postgres-dsn is required to replay a stored run (or use --input)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	p := pipeline.New(cfg.Scoring)

	var ok bool
	if *input != "" {
		ok, err = checkFile(ctx, p, *input, *runs, *outputJSON)
	} else {
		ok, err = replayStored(ctx, cfg, p, *runID, *outputJSON)
	}
	if err != nil {
		logger.Error().Err(err).Msg("verification failed")
		stop()
		os.Exit(1)
	}
	if !ok {
		stop()
		os.Exit(3)
	}
}

func checkFile(ctx context.Context, p *pipeline.Pipeline, input string, runs int, outputJSON bool) (bool, error) {
	raw, err := ingestion.LoadFile(input)
	if err != nil {
		return false, err
	}
	report, err := verification.CheckDeterminism(ctx, p, raw, runs)
	if err != nil {
		return false, err
	}

	if outputJSON {
		return report.Identical, printJSON(report)
	}
	fmt.Printf("\n=== Determinism Check ===\n")
	fmt.Printf("Input:      %s\n", input)
	fmt.Printf("Runs:       %d\n", report.Runs)
	fmt.Printf("Run ID:     %s\n", report.RunID)
	fmt.Printf("SHA256:     %s\n", report.Digest)
	if report.Identical {
		fmt.Printf("Result:     IDENTICAL\n")
	} else {
		fmt.Printf("Result:     DIVERGED at run %d\n", report.FirstDivergence)
		printDivergent(report.Results)
	}
	return report.Identical, nil
}

func replayStored(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, runID string, outputJSON bool) (bool, error) {
	stores, err := backend.Open(ctx, backend.Options{
		PostgresDSN:   cfg.PostgresDSN,
		ClickhouseDSN: cfg.ClickhouseDSN,
	})
	if err != nil {
		return false, err
	}
	defer stores.Close()

	if runID == "" {
		latest, err := stores.Scores.LatestRun(ctx)
		if err != nil {
			return false, fmt.Errorf("find latest run: %w", err)
		}
		runID = latest.RunID
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		EventStore:   stores.Events,
		ScoreStore:   stores.Scores,
		FeatureStore: stores.Features,
		Pipeline:     p,
	})
	report, err := verifier.VerifyRun(ctx, runID)
	if errors.Is(err, verification.ErrRunNotFound) {
		return false, fmt.Errorf("run %s: %w", runID, err)
	}
	if err != nil {
		return false, err
	}

	if outputJSON {
		return report.OK(), printJSON(report)
	}
	fmt.Printf("\n=== Replay Verification ===\n")
	fmt.Printf("Stored Run:        %s\n", report.RunID)
	fmt.Printf("Replayed Run:      %s\n", report.ReplayedRunID)
	fmt.Printf("Total Wallets:     %d\n", report.TotalWallets)
	fmt.Printf("Matched Wallets:   %d\n", report.MatchedWallets)
	fmt.Printf("Divergent Wallets: %d\n", report.DivergentWallets)
	if report.OK() {
		fmt.Printf("Result:            REPRODUCED\n")
	} else {
		fmt.Printf("Result:            DIVERGED\n")
		printDivergent(report.Results)
	}
	return report.OK(), nil
}

func printDivergent(results []verification.VerificationResult) {
	listed := 0
	for _, r := range results {
		if r.Match {
			continue
		}
		if listed == maxListed {
			fmt.Printf("  ...\n")
			return
		}
		listed++
		fmt.Printf("  %s stored=%d replayed=%d\n", r.Wallet, r.StoredScore, r.ReplayedScore)
		for _, d := range r.Divergences {
			fmt.Printf("    %s: %v != %v\n", d.Field, d.Expected, d.Actual)
		}
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
