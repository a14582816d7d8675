package pipeline

import (
	"context"
	"errors"
	"fmt"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// ErrRunExists is returned by Persist when the run id is already stored.
// Run ids are content-derived, so this means the same input was scored before.
var ErrRunExists = errors.New("run already persisted")

// Persist stores a run's scores and, when features is non-nil, its feature records.
// Scores are written first. An already stored run still gets its feature records
// written, so a run whose feature insert failed earlier is completed by the next
// attempt; Persist then returns ErrRunExists.
func Persist(ctx context.Context, res *Result, scores storage.ScoreStore, features storage.FeatureStore) error {
	run := &domain.ScoreRun{
		RunID:     res.Metadata.RunID,
		CreatedAt: res.Metadata.CreatedAt.UnixMilli(),
		Scores:    res.Scores,
	}
	exists := false
	if err := scores.InsertRun(ctx, run); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store scores: %w", err)
		}
		exists = true
	}

	if features != nil {
		err := features.InsertBulk(ctx, run.RunID, res.Table.Records())
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store features: %w", err)
		}
	}

	if exists {
		return ErrRunExists
	}
	return nil
}
