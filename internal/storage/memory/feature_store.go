package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalletFeatures // keyed by (run_id, wallet)
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[string]*domain.WalletFeatures),
	}
}

// featureKey generates a unique key for a feature record.
func featureKey(runID, wallet string) string {
	return fmt.Sprintf("%s|%s", runID, wallet)
}

// InsertBulk adds records for a run. Fails entire batch on duplicate.
func (s *FeatureStore) InsertBulk(_ context.Context, runID string, records []*domain.WalletFeatures) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(records))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range records {
		if r == nil || r.Wallet == "" {
			return storage.ErrInvalidInput
		}
		key := featureKey(runID, r.Wallet)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range records {
		s.data[featureKey(runID, r.Wallet)] = r.Clone()
	}

	return nil
}

// GetByRun retrieves records for a run, ordered by wallet ASC.
func (s *FeatureStore) GetByRun(_ context.Context, runID string) ([]*domain.WalletFeatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := runID + "|"
	var result []*domain.WalletFeatures
	for key, r := range s.data {
		if strings.HasPrefix(key, prefix) {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Wallet < result[j].Wallet
	})

	return result, nil
}

var _ storage.FeatureStore = (*FeatureStore)(nil)
