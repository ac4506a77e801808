package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
)

// ErrStockCheck mirrors the products.available_quantity CHECK constraint.
var ErrStockCheck = errors.New("check constraint check_quantity_positive violated")

type orderState struct {
	products map[int64]model.Product
	orders   map[int64]model.Order
	items    map[int64]model.OrderItem
	orderSeq int64
	itemSeq  int64
}

func (s *orderState) clone() *orderState {
	c := &orderState{
		products: make(map[int64]model.Product, len(s.products)),
		orders:   make(map[int64]model.Order, len(s.orders)),
		items:    make(map[int64]model.OrderItem, len(s.items)),
		orderSeq: s.orderSeq,
		itemSeq:  s.itemSeq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	return c
}

// MockOrderStore is an in-memory OrderStore. Transactions are serialized and
// run against a copy of the state that replaces it only on success.
type MockOrderStore struct {
	mu    sync.RWMutex
	state *orderState

	// For tracking calls in tests
	TxCalls     int
	CommitCalls int

	// CommitErr makes every transaction fail after fn succeeds
	CommitErr error
	// ReadErr makes every non-transactional read fail
	ReadErr error
	// BeforeCommit runs inside the transaction lock, after fn succeeds
	BeforeCommit func()
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		state: &orderState{
			products: make(map[int64]model.Product),
			orders:   make(map[int64]model.Order),
			items:    make(map[int64]model.OrderItem),
		},
	}
}

func (m *MockOrderStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.OrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TxCalls++
	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(ctx, &mockOrderTx{state: work}); err != nil {
		return err
	}
	if m.BeforeCommit != nil {
		m.BeforeCommit()
	}
	if m.CommitErr != nil {
		return m.CommitErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.state = work
	m.CommitCalls++
	return nil
}

func (m *MockOrderStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	o, ok := m.state.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (m *MockOrderStore) ListOrders(ctx context.Context, skip, limit int) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	ids := make([]int64, 0, len(m.state.orders))
	for id := range m.state.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var orders []model.Order
	for i := skip; i < len(ids) && len(orders) < limit; i++ {
		orders = append(orders, m.state.orders[ids[i]])
	}
	return orders, nil
}

func (m *MockOrderStore) CountOrders(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return int64(len(m.state.orders)), nil
}

func (m *MockOrderStore) ListOrderItems(ctx context.Context, orderIDs []int64) ([]model.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	wanted := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}
	var items []model.OrderItem
	for _, item := range m.state.items {
		if wanted[item.OrderID] {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items, nil
}

func (m *MockOrderStore) GetProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return pickProducts(m.state.products, ids), nil
}

func (m *MockOrderStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	products := make([]model.Product, 0, len(m.state.products))
	for _, p := range m.state.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// AddProduct seeds a product for testing
func (m *MockOrderStore) AddProduct(p model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

// Product returns the committed state of a product
func (m *MockOrderStore) Product(id int64) (model.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.state.products[id]
	return p, ok
}

// Items returns the committed items of an order
func (m *MockOrderStore) Items(orderID int64) []model.OrderItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []model.OrderItem
	for _, item := range m.state.items {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items
}

// OrderCount returns the number of committed orders
func (m *MockOrderStore) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.orders)
}

type mockOrderTx struct {
	state *orderState
}

func (t *mockOrderTx) LockProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	return pickProducts(t.state.products, ids), nil
}

func (t *mockOrderTx) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (t *mockOrderTx) LockOrderItem(ctx context.Context, orderID, productID int64) (*model.OrderItem, error) {
	for _, item := range t.state.items {
		if item.OrderID == orderID && item.ProductID == productID {
			it := item
			return &it, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *mockOrderTx) LockOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	var items []model.OrderItem
	for _, item := range t.state.items {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items, nil
}

func (t *mockOrderTx) InsertOrder(ctx context.Context, o *model.Order) error {
	t.state.orderSeq++
	o.ID = t.state.orderSeq
	o.CreatedAt = time.Now().UTC()
	t.state.orders[o.ID] = *o
	return nil
}

func (t *mockOrderTx) InsertOrderItem(ctx context.Context, item *model.OrderItem) error {
	if _, ok := t.state.orders[item.OrderID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.state.products[item.ProductID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range t.state.items {
		if existing.OrderID == item.OrderID && existing.ProductID == item.ProductID {
			return store.ErrDuplicate
		}
	}
	t.state.itemSeq++
	item.ID = t.state.itemSeq
	t.state.items[item.ID] = *item
	return nil
}

func (t *mockOrderTx) UpdateOrderItemQuantity(ctx context.Context, itemID, quantity int64) error {
	item, ok := t.state.items[itemID]
	if !ok {
		return store.ErrNotFound
	}
	item.Quantity = quantity
	t.state.items[itemID] = item
	return nil
}

func (t *mockOrderTx) UpdateOrderTotal(ctx context.Context, orderID, total int64) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.TotalQuantity = total
	t.state.orders[orderID] = o
	return nil
}

func (t *mockOrderTx) UpdateProductStock(ctx context.Context, productID, available int64) error {
	p, ok := t.state.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if available < 0 {
		return ErrStockCheck
	}
	p.AvailableQuantity = available
	t.state.products[productID] = p
	return nil
}

func (t *mockOrderTx) DeleteOrder(ctx context.Context, orderID int64) error {
	if _, ok := t.state.orders[orderID]; !ok {
		return store.ErrNotFound
	}
	delete(t.state.orders, orderID)
	for id, item := range t.state.items {
		if item.OrderID == orderID {
			delete(t.state.items, id)
		}
	}
	return nil
}

func pickProducts(all map[int64]model.Product, ids []int64) []model.Product {
	seen := make(map[int64]bool, len(ids))
	var products []model.Product
	for _, id := range ids {
		if p, ok := all[id]; ok && !seen[id] {
			seen[id] = true
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

func sortItems(items []model.OrderItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].OrderID != items[j].OrderID {
			return items[i].OrderID < items[j].OrderID
		}
		return items[i].ID < items[j].ID
	})
}
