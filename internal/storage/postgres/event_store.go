package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/idhash"
	"wallet-credit-lab/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
//
// Each event gets a content-derived event_id (see idhash.ComputeEventID), so
// re-submitting the same batch is a no-op instead of duplicating the log.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventQuery = `
	INSERT INTO lending_events (
		event_id, wallet, raw_action, action, ts, tx_hash, payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (event_id) DO NOTHING
`

// InsertBulk appends events atomically in slice order.
// Fails the entire batch on an event without a wallet.
func (s *EventStore) InsertBulk(ctx context.Context, events []domain.RawEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_events", start, err) }(time.Now())

	batch := &pgx.Batch{}
	for i, ev := range events {
		if ev.Wallet == "" {
			return storage.ErrInvalidInput
		}
		eventID, err := idhash.ComputeEventID(i, ev)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		payload, err := encodePayload(ev.Payload)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		batch.Queue(insertEventQuery,
			eventID, ev.Wallet, ev.RawAction, string(domain.ParseAction(ev.RawAction)),
			ev.Timestamp, ev.TxHash, payload,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := range events {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetAll retrieves every event in insertion order.
func (s *EventStore) GetAll(ctx context.Context) (events []domain.RawEvent, err error) {
	defer func(start time.Time) { observe("get_events", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT wallet, raw_action, ts, tx_hash, payload
		FROM lending_events
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev      domain.RawEvent
			payload []byte
		)
		if err := rows.Scan(&ev.Wallet, &ev.RawAction, &ev.Timestamp, &ev.TxHash, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Action = domain.ParseAction(ev.RawAction)
		if ev.Payload, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// encodePayload returns nil for an absent payload so the column stays NULL.
func encodePayload(payload map[string]any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// decodePayload keeps numbers as json.Number, matching the file loader.
func decodePayload(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
