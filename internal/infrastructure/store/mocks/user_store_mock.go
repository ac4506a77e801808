package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
)

// MockUserStore is an in-memory UserStore backed by a MockOutboxStore.
type MockUserStore struct {
	mu     sync.Mutex
	users  map[string]model.User
	Outbox *MockOutboxStore

	// TxErr makes every transaction fail before fn runs
	TxErr error
}

// NewMockUserStore creates a new MockUserStore
func NewMockUserStore(outbox *MockOutboxStore) *MockUserStore {
	if outbox == nil {
		outbox = NewMockOutboxStore()
	}
	return &MockUserStore{
		users:  make(map[string]model.User),
		Outbox: outbox,
	}
}

func (m *MockUserStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.UserTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TxErr != nil {
		return m.TxErr
	}

	tx := &mockUserTx{users: make(map[string]model.User, len(m.users))}
	for k, v := range m.users {
		tx.users[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.users = tx.users
	m.Outbox.append(tx.outbox.events)
	return nil
}

func (m *MockUserStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *MockUserStore) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Name == name {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

type mockUserTx struct {
	users  map[string]model.User
	outbox stagedOutbox
}

func (t *mockUserTx) Enqueue(ctx context.Context, topic, key string, payload any) error {
	return t.outbox.Enqueue(ctx, topic, key, payload)
}

func (t *mockUserTx) LockUser(ctx context.Context, id string) (*model.User, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *mockUserTx) InsertUser(ctx context.Context, u *model.User) error {
	if _, ok := t.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	if t.nameTaken(u.Name, u.ID) {
		return store.ErrDuplicate
	}
	t.users[u.ID] = *u
	return nil
}

func (t *mockUserTx) UpdateUser(ctx context.Context, u *model.User) error {
	existing, ok := t.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if t.nameTaken(u.Name, u.ID) {
		return store.ErrDuplicate
	}
	existing.Name = u.Name
	existing.Role = u.Role
	existing.UpdatedAt = u.UpdatedAt
	t.users[u.ID] = existing
	return nil
}

func (t *mockUserTx) DeleteUser(ctx context.Context, id string) error {
	if _, ok := t.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.users, id)
	return nil
}

func (t *mockUserTx) nameTaken(name, exceptID string) bool {
	for id, u := range t.users {
		if id != exceptID && u.Name == name {
			return true
		}
	}
	return false
}
