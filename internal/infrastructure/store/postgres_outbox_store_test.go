package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	enqueueSQL      = `INSERT INTO outbox \(id, topic, key, payload\) VALUES \(\$1, \$2, \$3, \$4\)$`
	pendingSQL      = `FROM outbox WHERE published_at IS NULL ORDER BY created_at ASC, seq ASC LIMIT \$1 FOR UPDATE SKIP LOCKED$`
	markPublished   = `UPDATE outbox SET published_at = now\(\), attempts = attempts \+ 1 WHERE id = \$1`
	markAttempted   = `UPDATE outbox SET attempts = attempts \+ 1 WHERE id = \$1`
	tombstonedSQL   = `SELECT EXISTS \(SELECT 1 FROM user_tombstones WHERE id = \$1\)`
	advisoryLockSQL = `SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`
)

// ============================================
// Outbox Tests
// ============================================

func TestPostgresOutbox_Enqueue_LeavesTimestampToDatabase(t *testing.T) {
	db, mock := newMockDB(t)
	users := store.NewPostgresUserStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(enqueueSQL).
		WithArgs(sqlmock.AnyArg(), "user_created", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := users.WithinTx(context.Background(), func(ctx context.Context, tx store.UserTx) error {
		return tx.Enqueue(ctx, "user_created", "u1", model.UserFact{ID: "u1", Name: "alice", Role: model.RoleUser})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutbox_ProcessPending_OrdersBySequenceWithinTimestamp(t *testing.T) {
	db, mock := newMockDB(t)
	outbox := store.NewPostgresOutboxStore(db)
	sameInstant := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(pendingSQL).WithArgs(10).WillReturnRows(
		sqlmock.NewRows([]string{"id", "topic", "key", "payload", "created_at", "attempts"}).
			AddRow("first", "user_created", "u1", []byte(`{"id":"u1"}`), sameInstant, 0).
			AddRow("second", "user_updated", "u1", []byte(`{"id":"u1"}`), sameInstant, 0).
			AddRow("third", "user_deleted", "u1", []byte(`{"id":"u1"}`), sameInstant, 0),
	)
	mock.ExpectExec(markPublished).WithArgs("first").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(markAttempted).WithArgs("second").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []string
	published, err := outbox.ProcessPending(context.Background(), 10, func(ctx context.Context, ev model.OutboxEvent) error {
		seen = append(seen, ev.ID)
		if ev.ID == "second" {
			return errors.New("broker unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, published)
	// a failed fact holds back everything queued after it
	assert.Equal(t, []string{"first", "second"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Replica Tombstone Tests
// ============================================

func TestPostgresReplica_DeleteUser_LeavesTombstone(t *testing.T) {
	db, mock := newMockDB(t)
	replicas := store.NewPostgresReplicaStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(advisoryLockSQL).WithArgs("user_replicas:u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO user_tombstones \(id\) VALUES \(\$1\) ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_replicas WHERE id = \$1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var deleted bool
	err := replicas.WithinTx(context.Background(), func(ctx context.Context, tx store.ReplicaTx) error {
		var err error
		deleted, err = tx.DeleteUser(ctx, "u1")
		return err
	})

	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplica_Tombstoned_LocksIDFirst(t *testing.T) {
	db, mock := newMockDB(t)
	replicas := store.NewPostgresReplicaStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(advisoryLockSQL).WithArgs("user_replicas:u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(tombstonedSQL).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	var dead bool
	err := replicas.WithinTx(context.Background(), func(ctx context.Context, tx store.ReplicaTx) error {
		var err error
		dead, err = tx.Tombstoned(ctx, "u1")
		return err
	})

	require.NoError(t, err)
	assert.True(t, dead)
	assert.NoError(t, mock.ExpectationsWereMet())
}
