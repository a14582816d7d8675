package verification

import (
	"context"
	"errors"
	"fmt"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/pipeline"
	"wallet-credit-lab/internal/storage"
)

// ErrRunNotFound is returned when the run ID doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// ReplayVerifier implements Verifier by rescoring the event log.
type ReplayVerifier struct {
	eventStore   storage.EventStore
	scoreStore   storage.ScoreStore
	featureStore storage.FeatureStore // optional
	pipeline     *pipeline.Pipeline
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	EventStore   storage.EventStore
	ScoreStore   storage.ScoreStore
	FeatureStore storage.FeatureStore
	Pipeline     *pipeline.Pipeline
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		eventStore:   opts.EventStore,
		scoreStore:   opts.ScoreStore,
		featureStore: opts.FeatureStore,
		pipeline:     opts.Pipeline,
	}
}

// VerifyRun replays the stored run and compares scores and, when a feature
// store is configured, the stored feature records.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	// 1. Load stored run
	stored, err := v.scoreStore.GetByRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	// 2. Replay
	raw, err := ingestion.LoadStore(ctx, v.eventStore)
	if err != nil {
		return nil, err
	}
	replayed, err := v.pipeline.Run(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}

	// 3. Compare
	results := CompareScores(stored.Scores, replayed.Scores)
	if v.featureStore != nil {
		if err := v.compareFeatures(ctx, runID, replayed.Table, results); err != nil {
			return nil, err
		}
	}

	report := &VerificationReport{
		RunID:         runID,
		ReplayedRunID: replayed.Metadata.RunID,
		TotalWallets:  len(results),
		Results:       results,
	}
	for _, r := range results {
		if r.Match {
			report.MatchedWallets++
		} else {
			report.DivergentWallets++
		}
	}
	return report, nil
}

func (v *ReplayVerifier) compareFeatures(ctx context.Context, runID string, table *domain.WalletTable, results []VerificationResult) error {
	records, err := v.featureStore.GetByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load stored features: %w", err)
	}
	stored := make(map[string]*domain.WalletFeatures, len(records))
	for _, r := range records {
		stored[r.Wallet] = r
	}

	for i := range results {
		s := stored[results[i].Wallet]
		r := table.Get(results[i].Wallet)
		if s == nil || r == nil {
			continue
		}
		results[i].Divergences = append(results[i].Divergences, CompareWalletFeatures(s, r)...)
		results[i].Match = len(results[i].Divergences) == 0
	}
	return nil
}
