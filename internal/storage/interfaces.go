package storage

import (
	"context"

	"wallet-credit-lab/internal/domain"
)

// EventStore provides access to the raw lending event log.
type EventStore interface {
	// InsertBulk appends events atomically, preserving their order.
	InsertBulk(ctx context.Context, events []domain.RawEvent) error

	// GetAll retrieves every event in insertion order.
	GetAll(ctx context.Context) ([]domain.RawEvent, error)
}

// ScoreStore provides access to credit score runs.
type ScoreStore interface {
	// InsertRun stores all scores of a run. Returns ErrDuplicateKey if run_id exists.
	InsertRun(ctx context.Context, run *domain.ScoreRun) error

	// GetByRun retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByRun(ctx context.Context, runID string) (*domain.ScoreRun, error)

	// LatestRun retrieves the most recently created run. Returns ErrNotFound if none.
	LatestRun(ctx context.Context) (*domain.ScoreRun, error)

	// GetLatest retrieves a wallet's score from the most recent run that scored it.
	// Returns ErrNotFound if the wallet was never scored.
	GetLatest(ctx context.Context, wallet string) (*domain.WalletScore, error)
}

// FeatureStore provides access to per-wallet feature records of a run.
type FeatureStore interface {
	// InsertBulk adds records for a run. Fails entire batch on duplicate (run_id, wallet).
	InsertBulk(ctx context.Context, runID string, records []*domain.WalletFeatures) error

	// GetByRun retrieves records for a run, ordered by wallet ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.WalletFeatures, error)
}
