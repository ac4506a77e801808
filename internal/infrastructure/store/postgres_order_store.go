package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-order-sync/internal/model"
	"github.com/lib/pq"
)

// PostgresOrderStore implements OrderStore with row-level locks.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

func (s *PostgresOrderStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, &pgOrderTx{tx: tx})
	})
}

func (s *PostgresOrderStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

func (s *PostgresOrderStore) ListOrders(ctx context.Context, skip, limit int) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, total_quantity, created_at
		 FROM orders
		 ORDER BY id ASC
		 OFFSET $1 LIMIT $2`,
		skip, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalQuantity, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresOrderStore) CountOrders(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&total)
	return total, err
}

func (s *PostgresOrderStore) ListOrderItems(ctx context.Context, orderIDs []int64) ([]model.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id ASC, id ASC`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, err
	}
	return scanOrderItems(rows)
}

func (s *PostgresOrderStore) GetProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price, available_quantity
		 FROM products
		 WHERE id = ANY($1)
		 ORDER BY id ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

func (s *PostgresOrderStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price, available_quantity FROM products ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

type pgOrderTx struct {
	tx *sql.Tx
}

func (t *pgOrderTx) LockProducts(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// ascending id order keeps concurrent lockers from deadlocking
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, name, price, available_quantity
		 FROM products
		 WHERE id = ANY($1)
		 ORDER BY id ASC
		 FOR UPDATE`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

func (t *pgOrderTx) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgOrderTx) LockOrderItem(ctx context.Context, orderID, productID int64) (*model.OrderItem, error) {
	var item model.OrderItem
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, order_id, product_id, quantity
		 FROM order_items
		 WHERE order_id = $1 AND product_id = $2
		 FOR UPDATE`,
		orderID, productID,
	).Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *pgOrderTx) LockOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id ASC
		 FOR UPDATE`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	return scanOrderItems(rows)
}

func (t *pgOrderTx) InsertOrder(ctx context.Context, o *model.Order) error {
	return t.tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_quantity)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		o.UserID, o.TotalQuantity,
	).Scan(&o.ID, &o.CreatedAt)
}

func (t *pgOrderTx) InsertOrderItem(ctx context.Context, item *model.OrderItem) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity,
	).Scan(&item.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgOrderTx) UpdateOrderItemQuantity(ctx context.Context, itemID, quantity int64) error {
	return execOne(ctx, t.tx,
		"UPDATE order_items SET quantity = $2 WHERE id = $1",
		itemID, quantity,
	)
}

func (t *pgOrderTx) UpdateOrderTotal(ctx context.Context, orderID, total int64) error {
	return execOne(ctx, t.tx,
		"UPDATE orders SET total_quantity = $2 WHERE id = $1",
		orderID, total,
	)
}

func (t *pgOrderTx) UpdateProductStock(ctx context.Context, productID, available int64) error {
	return execOne(ctx, t.tx,
		"UPDATE products SET available_quantity = $2 WHERE id = $1",
		productID, available,
	)
}

func (t *pgOrderTx) DeleteOrder(ctx context.Context, orderID int64) error {
	// order_items go with it through ON DELETE CASCADE
	return execOne(ctx, t.tx, "DELETE FROM orders WHERE id = $1", orderID)
}

func getOrder(ctx context.Context, q queryer, id int64, lock bool) (*model.Order, error) {
	query := `SELECT id, user_id, total_quantity, created_at FROM orders WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}

	var o model.Order
	err := q.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.UserID, &o.TotalQuantity, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrderItems(rows *sql.Rows) ([]model.OrderItem, error) {
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, q queryer, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
