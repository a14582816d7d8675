package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/storage/memory"
)

func TestPersist(t *testing.T) {
	ctx := context.Background()
	res, err := newPipeline().Run(ctx, mixedPopulation())
	require.NoError(t, err)

	scores := memory.NewScoreStore()
	features := memory.NewFeatureStore()
	require.NoError(t, Persist(ctx, res, scores, features))

	run, err := scores.GetByRun(ctx, res.Metadata.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Scores, run.Scores)
	assert.Equal(t, fixedClock().UnixMilli(), run.CreatedAt)

	records, err := features.GetByRun(ctx, res.Metadata.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Records(), records)

	assert.ErrorIs(t, Persist(ctx, res, scores, features), ErrRunExists)
}

// flakyFeatureStore fails the first insert and delegates afterwards.
type flakyFeatureStore struct {
	*memory.FeatureStore
	failures int
}

func (s *flakyFeatureStore) InsertBulk(ctx context.Context, runID string, records []*domain.WalletFeatures) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("clickhouse unavailable")
	}
	return s.FeatureStore.InsertBulk(ctx, runID, records)
}

func TestPersist_CompletesFeaturesOfStoredRun(t *testing.T) {
	ctx := context.Background()
	res, err := newPipeline().Run(ctx, mixedPopulation())
	require.NoError(t, err)

	scores := memory.NewScoreStore()
	features := &flakyFeatureStore{FeatureStore: memory.NewFeatureStore(), failures: 1}

	err = Persist(ctx, res, scores, features)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunExists)

	_, err = scores.GetByRun(ctx, res.Metadata.RunID)
	require.NoError(t, err, "scores are stored before features")
	records, err := features.GetByRun(ctx, res.Metadata.RunID)
	require.NoError(t, err)
	assert.Empty(t, records)

	// The retry finds the run stored but still writes its features.
	assert.ErrorIs(t, Persist(ctx, res, scores, features), ErrRunExists)
	records, err = features.GetByRun(ctx, res.Metadata.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Records(), records)

	// Features already present count as success.
	assert.ErrorIs(t, Persist(ctx, res, scores, features), ErrRunExists)
}

func TestPersist_WithoutFeatureStore(t *testing.T) {
	ctx := context.Background()
	res, err := newPipeline().Run(ctx, mixedPopulation())
	require.NoError(t, err)

	scores := memory.NewScoreStore()
	require.NoError(t, Persist(ctx, res, scores, nil))

	latest, err := scores.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Metadata.RunID, latest.RunID)
}

func TestFixtures_ScoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	require.NoError(t, LoadFixtures(ctx, store))

	events, err := ingestion.LoadStore(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, len(FixtureEvents()), len(events))

	res, err := newPipeline().Run(ctx, events)
	require.NoError(t, err)

	assert.Equal(t, 22, len(res.Scores))
	assert.False(t, res.Metadata.Degenerate)
	assert.Empty(t, res.Metadata.ModelFitError)
	assert.Equal(t, 0, res.Scores[fmt.Sprintf("0x%040x", 200)], "liquidated wallet has the lowest base score")
	for w, s := range res.Scores {
		assert.GreaterOrEqual(t, s, 0, w)
		assert.LessOrEqual(t, s, 1000, w)
	}
}
