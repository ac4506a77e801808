package store

import (
	"context"
	"errors"

	"github.com/example/ec-order-sync/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// OutboxWriter enqueues a fact in the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, topic, key string, payload any) error
}

// OrderTx exposes the row operations of a single order transaction.
// Lock* methods take row locks that are held until the transaction ends.
type OrderTx interface {
	// LockProducts returns the existing products among ids, ascending by id.
	LockProducts(ctx context.Context, ids []int64) ([]model.Product, error)
	LockOrder(ctx context.Context, id int64) (*model.Order, error)
	LockOrderItem(ctx context.Context, orderID, productID int64) (*model.OrderItem, error)
	LockOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	InsertOrder(ctx context.Context, o *model.Order) error
	InsertOrderItem(ctx context.Context, item *model.OrderItem) error
	UpdateOrderItemQuantity(ctx context.Context, itemID, quantity int64) error
	UpdateOrderTotal(ctx context.Context, orderID, total int64) error
	UpdateProductStock(ctx context.Context, productID, available int64) error
	DeleteOrder(ctx context.Context, orderID int64) error
}

// OrderStore persists orders, their items and the order-side product stock.
type OrderStore interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error

	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, skip, limit int) ([]model.Order, error)
	CountOrders(ctx context.Context) (int64, error)
	ListOrderItems(ctx context.Context, orderIDs []int64) ([]model.OrderItem, error)
	GetProducts(ctx context.Context, ids []int64) ([]model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// ReplicaReader is the read side of the identity replica.
type ReplicaReader interface {
	GetUser(ctx context.Context, id string) (*model.UserReplica, error)
	GetUsers(ctx context.Context, ids []string) ([]model.UserReplica, error)
}

// ReplicaTx is one fact application.
type ReplicaTx interface {
	LockUser(ctx context.Context, id string) (*model.UserReplica, error)
	// InsertUser reports false when a row with the same id already exists.
	InsertUser(ctx context.Context, u model.UserReplica) (bool, error)
	UpdateUser(ctx context.Context, u model.UserReplica) error
	// Tombstoned reports whether a delete for id has been applied. It also
	// holds a per-id lock until the transaction ends.
	Tombstoned(ctx context.Context, id string) (bool, error)
	// DeleteUser removes the replica and leaves a tombstone for id. It
	// reports false when there was no replica to delete.
	DeleteUser(ctx context.Context, id string) (bool, error)
	// InsertProduct reports false when a product with the same id already exists.
	InsertProduct(ctx context.Context, p model.Product) (bool, error)
}

// ReplicaStore holds the replicated users and products of a non-owning service.
type ReplicaStore interface {
	ReplicaReader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ReplicaTx) error) error
}

// UserTx is one identity write together with its outbox entry.
type UserTx interface {
	OutboxWriter
	LockUser(ctx context.Context, id string) (*model.User, error)
	InsertUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

// UserStore is the authoritative identity store.
type UserStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx UserTx) error) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByName(ctx context.Context, name string) (*model.User, error)
}

// CatalogTx is one catalog write together with its outbox entry.
type CatalogTx interface {
	OutboxWriter
	InsertProduct(ctx context.Context, p *model.Product) error
}

// CatalogStore is the catalog's own product registry.
type CatalogStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// OutboxStore hands pending facts to a publisher.
type OutboxStore interface {
	// ProcessPending locks up to limit unpublished events and calls publish
	// for each in creation order. Events whose publish succeeds are marked
	// published. The first failure stays pending with its attempt count
	// bumped and ends the batch.
	ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, ev model.OutboxEvent) error) (int, error)
}
