// Package pipeline wires the scoring stages into a single batch run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-credit-lab/internal/anomaly"
	"wallet-credit-lab/internal/config"
	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/features"
	"wallet-credit-lab/internal/idhash"
	"wallet-credit-lab/internal/logging"
	"wallet-credit-lab/internal/normalization"
	"wallet-credit-lab/internal/observability"
	"wallet-credit-lab/internal/repayment"
	"wallet-credit-lab/internal/scoring"
)

// EngineVersion is recorded in run metadata.
const EngineVersion = "1.0.0"

// Params are the model parameters that determine a run's output.
// Worker counts are excluded: they never change results.
type Params struct {
	TrackedActions  []domain.ActionKind `json:"tracked_actions"`
	MatchPolicy     string              `json:"match_policy"`
	Contamination   float64             `json:"contamination"`
	Trees           int                 `json:"trees"`
	MaxSamples      int                 `json:"max_samples"`
	Seed            int64               `json:"seed"`
	DegenerateScore int                 `json:"degenerate_score"`
}

// ParamsFromConfig extracts the output-determining parameters.
func ParamsFromConfig(cfg config.Scoring) Params {
	return Params{
		TrackedActions:  cfg.TrackedActions,
		MatchPolicy:     repayment.PolicyFromCausal(cfg.CausalRepayMatching).String(),
		Contamination:   cfg.Contamination,
		Trees:           cfg.Trees,
		MaxSamples:      cfg.MaxSamples,
		Seed:            cfg.Seed,
		DegenerateScore: cfg.DegenerateScore,
	}
}

// String renders params in a stable form used for run id derivation.
func (p Params) String() string {
	actions := make([]string, len(p.TrackedActions))
	for i, a := range p.TrackedActions {
		actions[i] = string(a)
	}
	return fmt.Sprintf("actions=%s;match=%s;contamination=%g;trees=%d;max_samples=%d;seed=%d;degenerate=%d",
		strings.Join(actions, ","), p.MatchPolicy, p.Contamination, p.Trees, p.MaxSamples, p.Seed, p.DegenerateScore)
}

// RunMetadata describes one scoring run.
type RunMetadata struct {
	RunID         string    `json:"run_id"`
	EngineVersion string    `json:"engine_version"`
	CreatedAt     time.Time `json:"created_at"`
	Params        Params    `json:"params"`

	Events            int `json:"events"`
	Wallets           int `json:"wallets"`
	Anomalies         int `json:"anomalies"`
	MatchedBorrows    int `json:"matched_borrows"`
	UnmatchedBorrows  int `json:"unmatched_borrows"`
	NegativeLatencies int `json:"negative_latencies"`

	// ModelFitError is set when the anomaly model could not be fitted and
	// every wallet was treated as not anomalous.
	ModelFitError string `json:"model_fit_error,omitempty"`

	Degenerate bool    `json:"degenerate"`
	MinBase    float64 `json:"min_base_score"`
	MaxBase    float64 `json:"max_base_score"`
}

// Result is the output of a successful run.
type Result struct {
	Table    *domain.WalletTable
	Scores   map[string]int
	Metadata RunMetadata

	// UnmatchedByWallet counts borrows without a repay of the same asset.
	UnmatchedByWallet map[string]int
}

// Pipeline runs the scoring stages.
type Pipeline struct {
	cfg   config.Scoring
	clock func() time.Time
}

// New creates a pipeline with the given model parameters.
func New(cfg config.Scoring) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic metadata.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// Run scores every wallet in raw. Input errors abort the run; a failed
// anomaly fit and a zero-variance population fall back deterministically.
func (p *Pipeline) Run(ctx context.Context, raw []domain.RawEvent) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, raw)

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordPipelineRun(status, time.Since(start).Seconds())
	if err == nil {
		observability.RecordPipelineSuccess(p.clock().Unix())
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, raw []domain.RawEvent) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}

	events, err := normalization.Normalize(raw)
	if err != nil {
		var inputErr *domain.InputError
		if errors.As(err, &inputErr) {
			observability.RecordInputError(inputErr.Field)
		}
		return nil, fmt.Errorf("normalize events: %w", err)
	}
	observability.RecordEventsNormalized(len(events))

	params := ParamsFromConfig(p.cfg)
	runID := idhash.ComputeRunID(events, params.String())
	ctx = logging.WithRunID(ctx, runID)
	log := logging.L(ctx)

	log.Info().Int("events", len(events)).Msg("events normalized")

	table, err := features.Aggregate(ctx, events, features.Options{
		TrackedActions: p.cfg.TrackedActions,
		Workers:        p.cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate features: %w", err)
	}
	log.Info().Int("wallets", table.Len()).Msg("features aggregated")

	matches := repayment.Match(events, repayment.PolicyFromCausal(p.cfg.CausalRepayMatching))
	if matches.Unmatched > 0 {
		log.Debug().
			Int("unmatched", matches.Unmatched).
			Int("wallets", len(matches.UnmatchedByWallet)).
			Msg("borrows without matching repay")
	}
	table = repayment.Apply(table, matches.Stats())

	meta := RunMetadata{
		RunID:             runID,
		EngineVersion:     EngineVersion,
		CreatedAt:         p.clock(),
		Params:            params,
		Events:            len(events),
		Wallets:           table.Len(),
		MatchedBorrows:    matches.Matched,
		UnmatchedBorrows:  matches.Unmatched,
		NegativeLatencies: matches.NegativeLatencies,
	}

	detected, err := anomaly.Detect(ctx, table, anomaly.Config{
		Contamination: p.cfg.Contamination,
		Trees:         p.cfg.Trees,
		MaxSamples:    p.cfg.MaxSamples,
		Seed:          p.cfg.Seed,
		Workers:       p.cfg.Workers,
	})
	switch {
	case errors.Is(err, anomaly.ErrModelFit):
		log.Warn().Err(err).Msg("anomaly model not fitted, no wallet flagged")
		meta.ModelFitError = err.Error()
	case err != nil:
		return nil, fmt.Errorf("detect anomalies: %w", err)
	}
	meta.Anomalies = detected.Flagged()
	table = anomaly.Apply(table, detected.Flags)

	table, outcome, err := scoring.Compose(table, scoring.Config{DegenerateScore: p.cfg.DegenerateScore})
	if err != nil {
		return nil, fmt.Errorf("compose scores: %w", err)
	}
	meta.Degenerate = outcome.Degenerate
	meta.MinBase = outcome.Min
	meta.MaxBase = outcome.Max
	if outcome.Degenerate && table.Len() > 0 {
		log.Warn().
			Float64("base_score", outcome.Min).
			Int("fallback", p.cfg.DegenerateScore).
			Msg("zero variance in base scores, using fallback score")
	}

	observability.RecordScoringRun(meta.Wallets, meta.Anomalies, meta.UnmatchedBorrows,
		meta.ModelFitError != "", meta.Degenerate)

	log.Info().
		Int("wallets", meta.Wallets).
		Int("anomalies", meta.Anomalies).
		Int("unmatched_borrows", meta.UnmatchedBorrows).
		Bool("degenerate", meta.Degenerate).
		Msg("scoring run complete")

	return &Result{
		Table:             table,
		Scores:            table.Scores(),
		Metadata:          meta,
		UnmatchedByWallet: matches.UnmatchedByWallet,
	}, nil
}
