package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-order-sync/internal/model"
)

// PostgresUserStore is the identity service's user table plus its outbox.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx UserTx) error) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, &pgUserTx{tx: tx})
	})
}

func (s *PostgresUserStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, s.db, "id", id, false)
}

func (s *PostgresUserStore) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	return getUser(ctx, s.db, "name", name, false)
}

type pgUserTx struct {
	tx *sql.Tx
}

func (t *pgUserTx) Enqueue(ctx context.Context, topic, key string, payload any) error {
	return enqueue(ctx, t.tx, topic, key, payload)
}

func (t *pgUserTx) LockUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, t.tx, "id", id, true)
}

func (t *pgUserTx) InsertUser(ctx context.Context, u *model.User) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO users (id, name, password_hash, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgUserTx) UpdateUser(ctx context.Context, u *model.User) error {
	err := execOne(ctx, t.tx,
		"UPDATE users SET name = $2, role = $3, updated_at = $4 WHERE id = $1",
		u.ID, u.Name, u.Role, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *pgUserTx) DeleteUser(ctx context.Context, id string) error {
	return execOne(ctx, t.tx, "DELETE FROM users WHERE id = $1", id)
}

// getUser looks a user up by one of the indexed columns.
func getUser(ctx context.Context, q queryer, column, value string, lock bool) (*model.User, error) {
	query := "SELECT id, name, password_hash, role, created_at, updated_at FROM users WHERE "
	switch column {
	case "id":
		query += "id = $1"
	case "name":
		query += "name = $1"
	default:
		return nil, errors.New("unsupported lookup column: " + column)
	}
	if lock {
		query += " FOR UPDATE"
	}

	var u model.User
	err := q.QueryRowContext(ctx, query, value).Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
