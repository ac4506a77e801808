package replication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"github.com/example/ec-order-sync/internal/infrastructure/store/mocks"
	"github.com/example/ec-order-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTopics = config.Topics{
	UserCreated:    "user_created",
	UserUpdated:    "user_updated",
	UserDeleted:    "user_deleted",
	ProductCreated: "product_created",
	DeadLetter:     "replication.dlq",
}

func newTestBridge() (*Bridge, *mocks.MockReplicaStore) {
	replicas := mocks.NewMockReplicaStore()
	return NewBridge(replicas, testTopics, nil).WithProducts(), replicas
}

func makeMessage(topic string, data any) kafka.Message {
	value, _ := json.Marshal(data)
	return kafka.Message{Topic: topic, Key: "key", Value: value}
}

// ============================================
// Created Tests
// ============================================

func TestBridge_UserCreated_InsertsReplica(t *testing.T) {
	bridge, replicas := newTestBridge()

	err := bridge.Apply(context.Background(), makeMessage("user_created", model.UserFact{ID: "u1", Name: "alice", Role: "admin"}))

	require.NoError(t, err)
	assert.Equal(t, model.UserReplica{ID: "u1", Name: "alice", Role: "admin"}, replicas.Users()["u1"])
}

func TestBridge_UserCreated_IsIdempotent(t *testing.T) {
	bridge, replicas := newTestBridge()
	ctx := context.Background()
	fact := model.UserFact{ID: "u1", Name: "alice", Role: "user"}

	first, err := bridge.ApplyUserCreated(ctx, fact)
	require.NoError(t, err)
	before := replicas.Users()

	second, err := bridge.ApplyUserCreated(ctx, fact)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, first)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Equal(t, before, replicas.Users())
}

func TestBridge_UserCreated_DuplicateDoesNotOverwrite(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.SetUser(model.UserReplica{ID: "u1", Name: "renamed", Role: "admin"})

	outcome, err := bridge.ApplyUserCreated(context.Background(), model.UserFact{ID: "u1", Name: "alice", Role: "user"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, "renamed", replicas.Users()["u1"].Name)
}

func TestBridge_UserCreated_DefaultsRole(t *testing.T) {
	bridge, replicas := newTestBridge()

	err := bridge.Apply(context.Background(), makeMessage("user_created", map[string]string{"id": "u1", "name": "alice"}))

	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, replicas.Users()["u1"].Role)
}

// ============================================
// Updated Tests
// ============================================

func TestBridge_UserUpdated_OverwritesReplica(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.SetUser(model.UserReplica{ID: "u1", Name: "alice", Role: "user"})

	outcome, err := bridge.ApplyUserUpdated(context.Background(), model.UserFact{ID: "u1", Name: "alice2", Role: "admin"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, model.UserReplica{ID: "u1", Name: "alice2", Role: "admin"}, replicas.Users()["u1"])
}

func TestBridge_UserUpdated_BeforeCreateIsImplicitCreate(t *testing.T) {
	bridge, replicas := newTestBridge()
	ctx := context.Background()

	outcome, err := bridge.ApplyUserUpdated(ctx, model.UserFact{ID: "u1", Name: "alice2", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeImplicitCreate, outcome)

	// The late create must not roll the newer name back.
	outcome, err = bridge.ApplyUserCreated(ctx, model.UserFact{ID: "u1", Name: "alice", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, "alice2", replicas.Users()["u1"].Name)
}

// ============================================
// Deleted Tests
// ============================================

func TestBridge_UserDeleted_RemovesReplica(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.SetUser(model.UserReplica{ID: "u1", Name: "alice", Role: "user"})

	err := bridge.Apply(context.Background(), makeMessage("user_deleted", model.UserDeletedFact{ID: "u1"}))

	require.NoError(t, err)
	assert.NotContains(t, replicas.Users(), "u1")
}

func TestBridge_UserDeleted_IsIdempotent(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.SetUser(model.UserReplica{ID: "u1", Name: "alice", Role: "user"})
	ctx := context.Background()

	first, err := bridge.ApplyUserDeleted(ctx, model.UserDeletedFact{ID: "u1"})
	require.NoError(t, err)
	second, err := bridge.ApplyUserDeleted(ctx, model.UserDeletedFact{ID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDeleted, first)
	assert.Equal(t, OutcomeNoop, second)
	assert.Empty(t, replicas.Users())
}

func TestBridge_UserDeleted_UnknownUserIsNoop(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.SetUser(model.UserReplica{ID: "other", Name: "bob", Role: "user"})

	outcome, err := bridge.ApplyUserDeleted(context.Background(), model.UserDeletedFact{ID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Len(t, replicas.Users(), 1)
}

func TestBridge_UserUpdated_AfterDeleteIsIgnored(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.SetUser(model.UserReplica{ID: "u1", Name: "alice", Role: "user"})
	ctx := context.Background()

	_, err := bridge.ApplyUserDeleted(ctx, model.UserDeletedFact{ID: "u1"})
	require.NoError(t, err)
	outcome, err := bridge.ApplyUserUpdated(ctx, model.UserFact{ID: "u1", Name: "alice2", Role: "admin"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeTombstoned, outcome)
	assert.NotContains(t, replicas.Users(), "u1")
}

func TestBridge_UserCreated_AfterDeleteIsIgnored(t *testing.T) {
	bridge, replicas := newTestBridge()
	ctx := context.Background()

	// the delete overtakes the create it belongs to
	deleted, err := bridge.ApplyUserDeleted(ctx, model.UserDeletedFact{ID: "u1"})
	require.NoError(t, err)
	created, err := bridge.ApplyUserCreated(ctx, model.UserFact{ID: "u1", Name: "alice", Role: "user"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoop, deleted)
	assert.Equal(t, OutcomeTombstoned, created)
	assert.Empty(t, replicas.Users())
}

func TestBridge_Tombstone_DoesNotAffectOtherUsers(t *testing.T) {
	bridge, replicas := newTestBridge()
	ctx := context.Background()

	_, err := bridge.ApplyUserDeleted(ctx, model.UserDeletedFact{ID: "u1"})
	require.NoError(t, err)
	outcome, err := bridge.ApplyUserUpdated(ctx, model.UserFact{ID: "u2", Name: "bob", Role: "user"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeImplicitCreate, outcome)
	assert.Equal(t, "bob", replicas.Users()["u2"].Name)
}

// ============================================
// Product Tests
// ============================================

func TestBridge_ProductCreated_KeepsLocalStockOnRedelivery(t *testing.T) {
	bridge, replicas := newTestBridge()
	ctx := context.Background()
	msg := makeMessage("product_created", model.ProductFact{ID: 3, Name: "Cable", Price: 900, Quantity: 40})

	require.NoError(t, bridge.Apply(ctx, msg))
	require.NoError(t, bridge.Apply(ctx, msg))

	p := replicas.Products()[3]
	assert.Equal(t, "Cable", p.Name)
	assert.Equal(t, int64(900), p.Price)
	assert.Equal(t, int64(40), p.AvailableQuantity)
}

func TestBridge_ProductCreated_IgnoredWithoutProducts(t *testing.T) {
	replicas := mocks.NewMockReplicaStore()
	bridge := NewBridge(replicas, testTopics, nil)

	err := bridge.Apply(context.Background(), makeMessage("product_created", model.ProductFact{ID: 3, Name: "Cable"}))

	assert.ErrorIs(t, err, ErrUnknownTopic)
	assert.Empty(t, replicas.Products())
	assert.Equal(t, []string{"user_created", "user_updated", "user_deleted"}, bridge.Topics())
}

// ============================================
// Failure Tests
// ============================================

func TestBridge_Apply_MalformedFacts(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		value string
	}{
		{"invalid json", "user_created", `{"id":`},
		{"missing id", "user_updated", `{"name":"alice"}`},
		{"missing name", "user_created", `{"id":"u1"}`},
		{"delete without id", "user_deleted", `{}`},
		{"negative stock", "product_created", `{"id":1,"name":"x","quantity":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge, replicas := newTestBridge()

			err := bridge.Apply(context.Background(), kafka.Message{Topic: tt.topic, Value: []byte(tt.value)})

			assert.ErrorIs(t, err, ErrMalformedFact)
			assert.True(t, IsPermanent(err))
			assert.Equal(t, 0, replicas.TxCalls)
		})
	}
}

func TestBridge_Apply_StoreFailureIsTransient(t *testing.T) {
	bridge, replicas := newTestBridge()
	replicas.FailTx = 1
	replicas.TxErr = errors.New("connection refused")

	err := bridge.Apply(context.Background(), makeMessage("user_created", model.UserFact{ID: "u1", Name: "alice"}))

	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Empty(t, replicas.Users())
}

func TestBridge_ConvergesUnderReorderingAndDuplicates(t *testing.T) {
	bridge, replicas := newTestBridge()
	ctx := context.Background()

	// update, create, duplicate update, delete, duplicate delete, stale facts
	msgs := []kafka.Message{
		makeMessage("user_updated", model.UserFact{ID: "u1", Name: "v2", Role: "user"}),
		makeMessage("user_created", model.UserFact{ID: "u1", Name: "v1", Role: "user"}),
		makeMessage("user_updated", model.UserFact{ID: "u1", Name: "v2", Role: "user"}),
		makeMessage("user_created", model.UserFact{ID: "u2", Name: "bob", Role: "user"}),
		makeMessage("user_deleted", model.UserDeletedFact{ID: "u1"}),
		makeMessage("user_deleted", model.UserDeletedFact{ID: "u1"}),
		makeMessage("user_updated", model.UserFact{ID: "u1", Name: "late", Role: "user"}),
		makeMessage("user_created", model.UserFact{ID: "u1", Name: "v1", Role: "user"}),
	}
	for _, msg := range msgs {
		require.NoError(t, bridge.Apply(ctx, msg))
	}

	users := replicas.Users()
	assert.NotContains(t, users, "u1")
	assert.Equal(t, "bob", users["u2"].Name)
}
