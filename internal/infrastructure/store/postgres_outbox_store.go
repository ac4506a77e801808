package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/ec-order-sync/internal/model"
	"github.com/google/uuid"
)

// PostgresOutboxStore reads the outbox table written by enqueue.
type PostgresOutboxStore struct {
	db *sql.DB
}

func NewPostgresOutboxStore(db *sql.DB) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

// enqueue stores a fact in the same transaction as the change it describes.
func enqueue(ctx context.Context, tx *sql.Tx, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	// created_at and seq come from the database so every writer shares one clock
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (id, topic, key, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(),
		topic,
		key,
		data,
	)
	return err
}

func (s *PostgresOutboxStore) ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, ev model.OutboxEvent) error) (int, error) {
	published := 0
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		// SKIP LOCKED lets several relays share the table
		rows, err := tx.QueryContext(ctx,
			`SELECT id, topic, key, payload, created_at, attempts
			 FROM outbox
			 WHERE published_at IS NULL
			 ORDER BY created_at ASC, seq ASC
			 LIMIT $1
			 FOR UPDATE SKIP LOCKED`,
			limit,
		)
		if err != nil {
			return err
		}

		var events []model.OutboxEvent
		for rows.Next() {
			var ev model.OutboxEvent
			if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.CreatedAt, &ev.Attempts); err != nil {
				rows.Close()
				return err
			}
			events = append(events, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, ev := range events {
			if pubErr := publish(ctx, ev); pubErr != nil {
				if _, err := tx.ExecContext(ctx,
					"UPDATE outbox SET attempts = attempts + 1 WHERE id = $1", ev.ID,
				); err != nil {
					return err
				}
				// keep creation order: later facts wait for this one
				break
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE outbox SET published_at = now(), attempts = attempts + 1 WHERE id = $1",
				ev.ID,
			); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
