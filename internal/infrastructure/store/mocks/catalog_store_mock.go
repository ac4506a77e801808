package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
)

// MockCatalogStore is an in-memory CatalogStore backed by a MockOutboxStore.
type MockCatalogStore struct {
	mu       sync.Mutex
	products map[int64]model.Product
	seq      int64
	Outbox   *MockOutboxStore

	// EnqueueErr makes the outbox write inside a transaction fail
	EnqueueErr error
}

// NewMockCatalogStore creates a new MockCatalogStore
func NewMockCatalogStore(outbox *MockOutboxStore) *MockCatalogStore {
	if outbox == nil {
		outbox = NewMockOutboxStore()
	}
	return &MockCatalogStore{
		products: make(map[int64]model.Product),
		Outbox:   outbox,
	}
}

func (m *MockCatalogStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.CatalogTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &mockCatalogTx{seq: m.seq, enqueueErr: m.EnqueueErr}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, p := range tx.inserted {
		m.products[p.ID] = p
	}
	m.seq = tx.seq
	m.Outbox.append(tx.outbox.events)
	return nil
}

func (m *MockCatalogStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make([]model.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

type mockCatalogTx struct {
	seq        int64
	inserted   []model.Product
	outbox     stagedOutbox
	enqueueErr error
}

func (t *mockCatalogTx) Enqueue(ctx context.Context, topic, key string, payload any) error {
	if t.enqueueErr != nil {
		return t.enqueueErr
	}
	return t.outbox.Enqueue(ctx, topic, key, payload)
}

func (t *mockCatalogTx) InsertProduct(ctx context.Context, p *model.Product) error {
	t.seq++
	p.ID = t.seq
	t.inserted = append(t.inserted, *p)
	return nil
}
