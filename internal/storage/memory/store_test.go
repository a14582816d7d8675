package memory

import (
	"context"
	"errors"
	"testing"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

func TestEventStore_InsertAndGetAllPreservesOrder(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	events := []domain.RawEvent{
		{Wallet: "b", Action: domain.ActionDeposit, Timestamp: 3, Payload: map[string]any{"amount": "1"}},
		{Wallet: "a", Action: domain.ActionBorrow, Timestamp: 1},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, []domain.RawEvent{{Wallet: "c", Timestamp: 2}}); err != nil {
		t.Fatalf("second InsertBulk failed: %v", err)
	}

	got, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"b", "a", "c"} {
		if got[i].Wallet != want {
			t.Errorf("event %d: got wallet %s, want %s", i, got[i].Wallet, want)
		}
	}

	// Returned payloads are copies
	got[0].Payload["amount"] = "999"
	again, _ := store.GetAll(ctx)
	if again[0].Payload["amount"] != "1" {
		t.Error("GetAll returned shared payload map")
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []domain.RawEvent{{Wallet: "a"}, {Wallet: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}

	got, _ := store.GetAll(ctx)
	if len(got) != 0 {
		t.Errorf("failed batch must not be partially stored, got %d events", len(got))
	}
}

func TestScoreStore_InsertAndGet(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	run := &domain.ScoreRun{RunID: "run1", CreatedAt: 1000, Scores: map[string]int{"a": 10, "b": 900}}
	if err := store.InsertRun(ctx, run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if got.Scores["b"] != 900 {
		t.Errorf("score mismatch: got %d, want 900", got.Scores["b"])
	}

	// Mutating the input after insert must not affect the store
	run.Scores["b"] = 1
	got, _ = store.GetByRun(ctx, "run1")
	if got.Scores["b"] != 900 {
		t.Error("store shares score map with caller")
	}
}

func TestScoreStore_DuplicateKey(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	run := &domain.ScoreRun{RunID: "run1", Scores: map[string]int{"a": 1}}
	if err := store.InsertRun(ctx, run); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertRun(ctx, run)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestScoreStore_NotFound(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	if _, err := store.GetByRun(ctx, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.LatestRun(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLatest(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestScoreStore_Latest(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	runs := []*domain.ScoreRun{
		{RunID: "old", CreatedAt: 1000, Scores: map[string]int{"a": 100, "b": 200}},
		{RunID: "new", CreatedAt: 2000, Scores: map[string]int{"a": 300}},
	}
	for _, r := range runs {
		if err := store.InsertRun(ctx, r); err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest.RunID != "new" {
		t.Errorf("expected latest run 'new', got %s", latest.RunID)
	}

	a, err := store.GetLatest(ctx, "a")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if a.Score != 300 || a.RunID != "new" {
		t.Errorf("unexpected latest score for a: %+v", a)
	}

	// b only appears in the older run
	b, err := store.GetLatest(ctx, "b")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if b.Score != 200 || b.RunID != "old" {
		t.Errorf("unexpected latest score for b: %+v", b)
	}
}

func TestFeatureStore_InsertBulkAndGetByRun(t *testing.T) {
	store := NewFeatureStore()
	ctx := context.Background()

	records := []*domain.WalletFeatures{
		{Wallet: "c", TxCount: 3},
		{Wallet: "a", TxCount: 1, ActionRatios: map[domain.ActionKind]float64{domain.ActionBorrow: 0.5}},
	}
	if err := store.InsertBulk(ctx, "run1", records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, "run2", []*domain.WalletFeatures{{Wallet: "b"}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Wallet != "a" || got[1].Wallet != "c" {
		t.Errorf("expected wallet order [a c], got [%s %s]", got[0].Wallet, got[1].Wallet)
	}
	if got[0].Ratio(domain.ActionBorrow) != 0.5 {
		t.Errorf("ratio mismatch: got %v", got[0].Ratio(domain.ActionBorrow))
	}
}

func TestFeatureStore_DuplicateKey(t *testing.T) {
	store := NewFeatureStore()
	ctx := context.Background()

	records := []*domain.WalletFeatures{{Wallet: "a"}, {Wallet: "a"}}
	err := store.InsertBulk(ctx, "run1", records)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	if err := store.InsertBulk(ctx, "run1", records[:1]); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	err = store.InsertBulk(ctx, "run1", records[:1])
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}
