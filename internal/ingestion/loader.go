package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/observability"
	"wallet-credit-lab/internal/storage"
)

// record is the on-disk shape of one lending event.
type record struct {
	Wallet     string          `json:"userWallet"`
	Action     string          `json:"action"`
	Timestamp  json.Number     `json:"timestamp"`
	ActionData json.RawMessage `json:"actionData"`
	TxHash     string          `json:"txHash"`
}

// LoadFile reads a JSON event log from path.
func LoadFile(path string) ([]domain.RawEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.InputError{Index: -1, Err: fmt.Errorf("open event log: %w", err)}
	}
	defer f.Close()

	events, err := Decode(f)
	if err != nil {
		return nil, err
	}
	observability.RecordEventsLoaded("file", len(events))
	return events, nil
}

// Decode parses a JSON array of event records.
// Any malformed record fails the whole load with a *domain.InputError.
func Decode(r io.Reader) ([]domain.RawEvent, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []record
	if err := dec.Decode(&records); err != nil {
		return nil, &domain.InputError{Index: -1, Err: fmt.Errorf("decode event log: %w", err)}
	}

	events := make([]domain.RawEvent, len(records))
	for i, rec := range records {
		ev, err := convertRecord(i, rec)
		if err != nil {
			return nil, err
		}
		events[i] = ev
	}
	return events, nil
}

// LoadStore reads all events from an event store in insertion order.
func LoadStore(ctx context.Context, store storage.EventStore) ([]domain.RawEvent, error) {
	events, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events from store: %w", err)
	}
	for i := range events {
		if events[i].Wallet == "" {
			return nil, &domain.InputError{Index: i, Field: "userWallet", Err: errors.New("missing wallet")}
		}
	}
	observability.RecordEventsLoaded("store", len(events))
	return events, nil
}

func convertRecord(i int, rec record) (domain.RawEvent, error) {
	if rec.Wallet == "" {
		return domain.RawEvent{}, &domain.InputError{Index: i, Field: "userWallet", Err: errors.New("missing wallet")}
	}
	if rec.Timestamp == "" {
		return domain.RawEvent{}, &domain.InputError{Index: i, Wallet: rec.Wallet, Field: "timestamp", Err: errors.New("missing timestamp")}
	}
	ts, err := rec.Timestamp.Int64()
	if err != nil {
		return domain.RawEvent{}, &domain.InputError{Index: i, Wallet: rec.Wallet, Field: "timestamp", Err: fmt.Errorf("not an integer: %s", rec.Timestamp)}
	}

	payload, err := DecodePayload(rec.ActionData)
	if err != nil {
		return domain.RawEvent{}, &domain.InputError{Index: i, Wallet: rec.Wallet, Field: "actionData", Err: err}
	}

	return domain.RawEvent{
		Wallet:    rec.Wallet,
		Action:    domain.ParseAction(rec.Action),
		RawAction: rec.Action,
		Timestamp: ts,
		Payload:   payload,
		TxHash:    rec.TxHash,
	}, nil
}

// DecodePayload decodes an action payload. The payload is either a JSON object
// or a string holding a JSON object or a Python dict literal. Absent or null
// payloads decode to nil. Numbers are kept as json.Number so that the
// normalizer sees their exact text.
func DecodePayload(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	fromString := false
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("decode payload string: %w", err)
		}
		raw = bytes.TrimSpace([]byte(encoded))
		if len(raw) == 0 {
			return nil, nil
		}
		fromString = true
	}

	if raw[0] != '{' {
		return nil, fmt.Errorf("payload is not a mapping")
	}

	payload, err := decodeObject(raw)
	if err == nil || !fromString {
		return payload, err
	}
	converted, convErr := pythonLiteralToJSON(string(raw))
	if convErr != nil {
		return nil, fmt.Errorf("%w (as python literal: %v)", err, convErr)
	}
	if payload, convErr = decodeObject(converted); convErr != nil {
		return nil, err
	}
	return payload, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
