package ingestion

import (
	"context"
	"fmt"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/normalization"
	"wallet-credit-lab/internal/storage"
)

// IngestResult summarizes one ingest call.
type IngestResult struct {
	Events  int
	Quality Summary
}

// Ingest validates events and appends them to store in order.
// Events that would fail normalization are rejected before anything is written,
// so a bad file never reaches the stored log.
func Ingest(ctx context.Context, store storage.EventStore, events []domain.RawEvent) (*IngestResult, error) {
	if _, err := normalization.Normalize(events); err != nil {
		return nil, fmt.Errorf("validate events: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		return nil, fmt.Errorf("store events: %w", err)
	}
	return &IngestResult{Events: len(events), Quality: Summarize(events)}, nil
}
