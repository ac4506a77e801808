package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
)

// MockReplicaStore is an in-memory ReplicaStore for testing
type MockReplicaStore struct {
	mu       sync.Mutex
	users      map[string]model.UserReplica
	tombstones map[string]bool
	products   map[int64]model.Product

	// For tracking calls in tests
	TxCalls     int
	InsertCalls int
	UpdateCalls int
	DeleteCalls int

	// FailTx makes the next FailTx transactions return TxErr
	FailTx int
	TxErr  error
}

// NewMockReplicaStore creates a new MockReplicaStore
func NewMockReplicaStore() *MockReplicaStore {
	return &MockReplicaStore{
		users:      make(map[string]model.UserReplica),
		tombstones: make(map[string]bool),
		products:   make(map[int64]model.Product),
	}
}

func (m *MockReplicaStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.ReplicaTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TxCalls++
	if m.FailTx > 0 {
		m.FailTx--
		return m.TxErr
	}

	tx := &mockReplicaTx{
		parent:     m,
		users:      make(map[string]model.UserReplica, len(m.users)),
		tombstones: make(map[string]bool, len(m.tombstones)),
		products:   make(map[int64]model.Product, len(m.products)),
	}
	for k, v := range m.users {
		tx.users[k] = v
	}
	for k := range m.tombstones {
		tx.tombstones[k] = true
	}
	for k, v := range m.products {
		tx.products[k] = v
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.users = tx.users
	m.tombstones = tx.tombstones
	m.products = tx.products
	return nil
}

func (m *MockReplicaStore) GetUser(ctx context.Context, id string) (*model.UserReplica, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *MockReplicaStore) GetUsers(ctx context.Context, ids []string) ([]model.UserReplica, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var users []model.UserReplica
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

// SetUser seeds a replica for testing
func (m *MockReplicaStore) SetUser(u model.UserReplica) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// Users returns a copy of every replica
func (m *MockReplicaStore) Users() map[string]model.UserReplica {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]model.UserReplica, len(m.users))
	for k, v := range m.users {
		out[k] = v
	}
	return out
}

// Products returns a copy of every replicated product
func (m *MockReplicaStore) Products() map[int64]model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]model.Product, len(m.products))
	for k, v := range m.products {
		out[k] = v
	}
	return out
}

type mockReplicaTx struct {
	parent     *MockReplicaStore
	users      map[string]model.UserReplica
	tombstones map[string]bool
	products   map[int64]model.Product
}

func (t *mockReplicaTx) Tombstoned(ctx context.Context, id string) (bool, error) {
	return t.tombstones[id], nil
}

func (t *mockReplicaTx) LockUser(ctx context.Context, id string) (*model.UserReplica, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *mockReplicaTx) InsertUser(ctx context.Context, u model.UserReplica) (bool, error) {
	t.parent.InsertCalls++
	if _, ok := t.users[u.ID]; ok {
		return false, nil
	}
	t.users[u.ID] = u
	return true, nil
}

func (t *mockReplicaTx) UpdateUser(ctx context.Context, u model.UserReplica) error {
	t.parent.UpdateCalls++
	if _, ok := t.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	t.users[u.ID] = u
	return nil
}

func (t *mockReplicaTx) DeleteUser(ctx context.Context, id string) (bool, error) {
	t.parent.DeleteCalls++
	t.tombstones[id] = true
	if _, ok := t.users[id]; !ok {
		return false, nil
	}
	delete(t.users, id)
	return true, nil
}

func (t *mockReplicaTx) InsertProduct(ctx context.Context, p model.Product) (bool, error) {
	if _, ok := t.products[p.ID]; ok {
		return false, nil
	}
	t.products[p.ID] = p
	return true, nil
}
