package memory

import (
	"context"
	"sync"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// ScoreStore is an in-memory implementation of storage.ScoreStore.
type ScoreStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.ScoreRun // keyed by run_id
	order []string                    // run ids in insertion order
}

// NewScoreStore creates a new in-memory score store.
func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		data: make(map[string]*domain.ScoreRun),
	}
}

// InsertRun stores a run. Returns ErrDuplicateKey if run_id exists.
func (s *ScoreStore) InsertRun(_ context.Context, run *domain.ScoreRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[run.RunID] = copyRun(run)
	s.order = append(s.order, run.RunID)
	return nil
}

// GetByRun retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ScoreStore) GetByRun(_ context.Context, runID string) (*domain.ScoreRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRun(run), nil
}

// LatestRun retrieves the run with the greatest CreatedAt.
// Ties go to the run inserted last.
func (s *ScoreStore) LatestRun(_ context.Context) (*domain.ScoreRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestLocked(func(*domain.ScoreRun) bool { return true })
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copyRun(latest), nil
}

// GetLatest retrieves a wallet's score from the latest run that scored it.
func (s *ScoreStore) GetLatest(_ context.Context, wallet string) (*domain.WalletScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestLocked(func(r *domain.ScoreRun) bool {
		_, ok := r.Scores[wallet]
		return ok
	})
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return &domain.WalletScore{
		RunID:     latest.RunID,
		Wallet:    wallet,
		Score:     latest.Scores[wallet],
		CreatedAt: latest.CreatedAt,
	}, nil
}

func (s *ScoreStore) latestLocked(match func(*domain.ScoreRun) bool) *domain.ScoreRun {
	var latest *domain.ScoreRun
	for _, id := range s.order {
		r := s.data[id]
		if !match(r) {
			continue
		}
		if latest == nil || r.CreatedAt >= latest.CreatedAt {
			latest = r
		}
	}
	return latest
}

func copyRun(r *domain.ScoreRun) *domain.ScoreRun {
	c := *r
	c.Scores = make(map[string]int, len(r.Scores))
	for w, score := range r.Scores {
		c.Scores[w] = score
	}
	return &c
}

var _ storage.ScoreStore = (*ScoreStore)(nil)
