package store

import (
	"context"
	"database/sql"

	"github.com/example/ec-order-sync/internal/model"
)

// PostgresCatalogStore is the catalog service's product registry.
type PostgresCatalogStore struct {
	db *sql.DB
}

func NewPostgresCatalogStore(db *sql.DB) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

func (s *PostgresCatalogStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, &pgCatalogTx{tx: tx})
	})
}

func (s *PostgresCatalogStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price, available_quantity FROM products ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

type pgCatalogTx struct {
	tx *sql.Tx
}

func (t *pgCatalogTx) Enqueue(ctx context.Context, topic, key string, payload any) error {
	return enqueue(ctx, t.tx, topic, key, payload)
}

func (t *pgCatalogTx) InsertProduct(ctx context.Context, p *model.Product) error {
	return t.tx.QueryRowContext(ctx,
		`INSERT INTO products (name, price, available_quantity)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		p.Name, p.Price, p.AvailableQuantity,
	).Scan(&p.ID)
}
