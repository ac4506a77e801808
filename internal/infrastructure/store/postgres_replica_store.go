package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-order-sync/internal/model"
	"github.com/lib/pq"
)

// PostgresReplicaStore keeps replicated users and products in the local database.
type PostgresReplicaStore struct {
	db *sql.DB
}

func NewPostgresReplicaStore(db *sql.DB) *PostgresReplicaStore {
	return &PostgresReplicaStore{db: db}
}

func (s *PostgresReplicaStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ReplicaTx) error) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, &pgReplicaTx{tx: tx})
	})
}

func (s *PostgresReplicaStore) GetUser(ctx context.Context, id string) (*model.UserReplica, error) {
	return getReplica(ctx, s.db, id, false)
}

func (s *PostgresReplicaStore) GetUsers(ctx context.Context, ids []string) ([]model.UserReplica, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, role FROM user_replicas WHERE id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.UserReplica
	for rows.Next() {
		var u model.UserReplica
		if err := rows.Scan(&u.ID, &u.Name, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type pgReplicaTx struct {
	tx *sql.Tx
}

func (t *pgReplicaTx) LockUser(ctx context.Context, id string) (*model.UserReplica, error) {
	return getReplica(ctx, t.tx, id, true)
}

func (t *pgReplicaTx) InsertUser(ctx context.Context, u model.UserReplica) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO user_replicas (id, name, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Name, u.Role,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *pgReplicaTx) UpdateUser(ctx context.Context, u model.UserReplica) error {
	return execOne(ctx, t.tx,
		"UPDATE user_replicas SET name = $2, role = $3 WHERE id = $1",
		u.ID, u.Name, u.Role,
	)
}

// lockID serializes facts about one user id across transactions, including
// ids that have no row to lock.
func (t *pgReplicaTx) lockID(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "user_replicas:"+id)
	return err
}

func (t *pgReplicaTx) Tombstoned(ctx context.Context, id string) (bool, error) {
	if err := t.lockID(ctx, id); err != nil {
		return false, err
	}
	var dead bool
	err := t.tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM user_tombstones WHERE id = $1)", id,
	).Scan(&dead)
	return dead, err
}

func (t *pgReplicaTx) DeleteUser(ctx context.Context, id string) (bool, error) {
	if err := t.lockID(ctx, id); err != nil {
		return false, err
	}
	if _, err := t.tx.ExecContext(ctx,
		"INSERT INTO user_tombstones (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", id,
	); err != nil {
		return false, err
	}
	err := execOne(ctx, t.tx, "DELETE FROM user_replicas WHERE id = $1", id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *pgReplicaTx) InsertProduct(ctx context.Context, p model.Product) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO products (id, name, price, available_quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Price, p.AvailableQuantity,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func getReplica(ctx context.Context, q queryer, id string, lock bool) (*model.UserReplica, error) {
	query := "SELECT id, name, role FROM user_replicas WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}

	var u model.UserReplica
	err := q.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
