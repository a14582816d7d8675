package memory

import (
	"context"
	"sync"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []domain.RawEvent // insertion order
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// InsertBulk appends events atomically. Fails entire batch on an event without a wallet.
func (s *EventStore) InsertBulk(_ context.Context, events []domain.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if ev.Wallet == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		s.data = append(s.data, copyEvent(ev))
	}
	return nil
}

// GetAll retrieves every event in insertion order.
func (s *EventStore) GetAll(_ context.Context) ([]domain.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RawEvent, len(s.data))
	for i, ev := range s.data {
		result[i] = copyEvent(ev)
	}
	return result, nil
}

func copyEvent(ev domain.RawEvent) domain.RawEvent {
	if ev.Payload != nil {
		payload := make(map[string]any, len(ev.Payload))
		for k, v := range ev.Payload {
			payload[k] = v
		}
		ev.Payload = payload
	}
	return ev
}

var _ storage.EventStore = (*EventStore)(nil)
