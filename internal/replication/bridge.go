// Package replication applies identity and catalog facts to a service's
// local replica. Delivery is at-least-once and unordered, so every fact is
// applied idempotently in its own transaction.
package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

var (
	ErrMalformedFact = errors.New("malformed fact")
	ErrUnknownTopic  = errors.New("unknown topic")
)

// Outcome says what applying a fact did to the replica.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeUpdated        Outcome = "updated"
	OutcomeDeleted        Outcome = "deleted"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeImplicitCreate Outcome = "implicit_create"
	OutcomeNoop           Outcome = "noop"
	OutcomeTombstoned     Outcome = "tombstoned"
)

type Bridge struct {
	replicas store.ReplicaStore
	topics   config.Topics
	products bool
	logger   *zap.Logger
}

func NewBridge(replicas store.ReplicaStore, topics config.Topics, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{replicas: replicas, topics: topics, logger: logger}
}

// WithProducts makes the bridge also accept product_created.
func (b *Bridge) WithProducts() *Bridge {
	b.products = true
	return b
}

// Topics is the subscription the bridge expects.
func (b *Bridge) Topics() []string {
	topics := b.topics.UserTopics()
	if b.products {
		topics = append(topics, b.topics.ProductCreated)
	}
	return topics
}

// Apply routes msg by topic. It is a kafka.MessageHandler.
func (b *Bridge) Apply(ctx context.Context, msg kafka.Message) error {
	var (
		outcome Outcome
		err     error
	)
	switch {
	case msg.Topic == b.topics.UserCreated:
		var fact model.UserFact
		if err := decodeUser(msg.Value, &fact); err != nil {
			return err
		}
		outcome, err = b.ApplyUserCreated(ctx, fact)
	case msg.Topic == b.topics.UserUpdated:
		var fact model.UserFact
		if err := decodeUser(msg.Value, &fact); err != nil {
			return err
		}
		outcome, err = b.ApplyUserUpdated(ctx, fact)
	case msg.Topic == b.topics.UserDeleted:
		var fact model.UserDeletedFact
		if err := decode(msg.Value, &fact); err != nil {
			return err
		}
		if fact.ID == "" {
			return fmt.Errorf("%w: missing id", ErrMalformedFact)
		}
		outcome, err = b.ApplyUserDeleted(ctx, fact)
	case b.products && msg.Topic == b.topics.ProductCreated:
		var fact model.ProductFact
		if err := decode(msg.Value, &fact); err != nil {
			return err
		}
		if fact.ID <= 0 || fact.Quantity < 0 || fact.Price < 0 {
			return fmt.Errorf("%w: invalid product %d", ErrMalformedFact, fact.ID)
		}
		outcome, err = b.ApplyProductCreated(ctx, fact)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTopic, msg.Topic)
	}
	if err != nil {
		return err
	}

	b.logger.Debug("fact applied",
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

// ApplyUserCreated inserts the replica. A redelivered create changes nothing,
// and neither does a create for an id that was already deleted.
func (b *Bridge) ApplyUserCreated(ctx context.Context, fact model.UserFact) (Outcome, error) {
	outcome := OutcomeCreated
	err := b.replicas.WithinTx(ctx, func(ctx context.Context, tx store.ReplicaTx) error {
		dead, err := tx.Tombstoned(ctx, fact.ID)
		if err != nil {
			return err
		}
		if dead {
			outcome = OutcomeTombstoned
			return nil
		}
		inserted, err := tx.InsertUser(ctx, replicaOf(fact))
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("apply user_created %s: %w", fact.ID, err)
	}

	switch outcome {
	case OutcomeDuplicate:
		b.logger.Info("user already replicated", zap.String("user_id", fact.ID))
	case OutcomeTombstoned:
		b.logger.Info("create for deleted user ignored", zap.String("user_id", fact.ID))
	default:
		b.logger.Info("user replicated", zap.String("user_id", fact.ID), zap.String("name", fact.Name))
	}
	return outcome, nil
}

// ApplyUserUpdated overwrites the replica. An update for a replica that does
// not exist yet is applied as a create, unless the id was deleted.
func (b *Bridge) ApplyUserUpdated(ctx context.Context, fact model.UserFact) (Outcome, error) {
	outcome := OutcomeUpdated
	err := b.replicas.WithinTx(ctx, func(ctx context.Context, tx store.ReplicaTx) error {
		dead, err := tx.Tombstoned(ctx, fact.ID)
		if err != nil {
			return err
		}
		if dead {
			outcome = OutcomeTombstoned
			return nil
		}
		_, err = tx.LockUser(ctx, fact.ID)
		if errors.Is(err, store.ErrNotFound) {
			outcome = OutcomeImplicitCreate
			_, err := tx.InsertUser(ctx, replicaOf(fact))
			return err
		}
		if err != nil {
			return err
		}
		return tx.UpdateUser(ctx, replicaOf(fact))
	})
	if err != nil {
		return "", fmt.Errorf("apply user_updated %s: %w", fact.ID, err)
	}

	switch outcome {
	case OutcomeImplicitCreate:
		b.logger.Warn("update for unknown user applied as create", zap.String("user_id", fact.ID))
	case OutcomeTombstoned:
		b.logger.Info("update for deleted user ignored", zap.String("user_id", fact.ID))
	default:
		b.logger.Info("user replica updated", zap.String("user_id", fact.ID))
	}
	return outcome, nil
}

// ApplyUserDeleted removes the replica and tombstones the id. Deleting an
// absent replica succeeds and still leaves the tombstone.
func (b *Bridge) ApplyUserDeleted(ctx context.Context, fact model.UserDeletedFact) (Outcome, error) {
	outcome := OutcomeDeleted
	err := b.replicas.WithinTx(ctx, func(ctx context.Context, tx store.ReplicaTx) error {
		deleted, err := tx.DeleteUser(ctx, fact.ID)
		if err != nil {
			return err
		}
		if !deleted {
			outcome = OutcomeNoop
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("apply user_deleted %s: %w", fact.ID, err)
	}

	if outcome == OutcomeNoop {
		b.logger.Info("user replica already absent", zap.String("user_id", fact.ID))
	} else {
		b.logger.Info("user replica deleted", zap.String("user_id", fact.ID))
	}
	return outcome, nil
}

// ApplyProductCreated adds a product with its initial stock. Redelivery never
// resets stock that orders have already taken.
func (b *Bridge) ApplyProductCreated(ctx context.Context, fact model.ProductFact) (Outcome, error) {
	outcome := OutcomeCreated
	err := b.replicas.WithinTx(ctx, func(ctx context.Context, tx store.ReplicaTx) error {
		inserted, err := tx.InsertProduct(ctx, model.Product{
			ID:                fact.ID,
			Name:              fact.Name,
			Price:             fact.Price,
			AvailableQuantity: fact.Quantity,
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("apply product_created %d: %w", fact.ID, err)
	}

	b.logger.Info("product replicated",
		zap.Int64("product_id", fact.ID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func replicaOf(fact model.UserFact) model.UserReplica {
	return model.UserReplica{ID: fact.ID, Name: fact.Name, Role: fact.Role}
}

func decode(value []byte, v any) error {
	if err := json.Unmarshal(value, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFact, err)
	}
	return nil
}

func decodeUser(value []byte, fact *model.UserFact) error {
	if err := decode(value, fact); err != nil {
		return err
	}
	if fact.ID == "" || fact.Name == "" {
		return fmt.Errorf("%w: user fact needs id and name", ErrMalformedFact)
	}
	if fact.Role == "" {
		fact.Role = model.RoleUser
	}
	return nil
}
