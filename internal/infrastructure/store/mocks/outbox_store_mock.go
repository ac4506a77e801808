package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/ec-order-sync/internal/model"
	"github.com/google/uuid"
)

// MockOutboxStore is an in-memory outbox shared by the user and catalog mocks.
type MockOutboxStore struct {
	mu     sync.Mutex
	events []model.OutboxEvent
}

// NewMockOutboxStore creates a new MockOutboxStore
func NewMockOutboxStore() *MockOutboxStore {
	return &MockOutboxStore{}
}

func (m *MockOutboxStore) ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, ev model.OutboxEvent) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	published := 0
	for i := range m.events {
		if published >= limit {
			break
		}
		ev := &m.events[i]
		if ev.PublishedAt != nil {
			continue
		}
		ev.Attempts++
		if err := publish(ctx, *ev); err != nil {
			break
		}
		now := time.Now().UTC()
		ev.PublishedAt = &now
		published++
	}
	return published, nil
}

// Events returns every stored event, published or not
func (m *MockOutboxStore) Events() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.OutboxEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Pending returns the events not yet published
func (m *MockOutboxStore) Pending() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.OutboxEvent
	for _, ev := range m.events {
		if ev.PublishedAt == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (m *MockOutboxStore) append(evs []model.OutboxEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evs...)
}

// stagedOutbox collects enqueued events until the owning transaction commits.
type stagedOutbox struct {
	events []model.OutboxEvent
}

func (s *stagedOutbox) Enqueue(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.events = append(s.events, model.OutboxEvent{
		ID:        uuid.New().String(),
		Topic:     topic,
		Key:       key,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}
