package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"findiff/internal/events/models"
	"findiff/internal/platform/postgres"
	id "findiff/pkg/domain"
)

// PostgresStore writes each event to workflow_events and to the outbox in the
// caller's transaction. The relay publishes outbox rows to Kafka.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event models.Event) error {
	entry, err := models.NewOutboxEntry(event)
	if err != nil {
		return err
	}
	conn := postgres.Conn(ctx, s.db)
	_, err = conn.ExecContext(ctx, `
		INSERT INTO workflow_events (id, order_id, type, actor_id, from_status, to_status, remark, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(event.ID), uuid.UUID(event.OrderID), string(event.Type), postgres.NullUUID(event.ActorID),
		event.FromStatus, event.ToStatus, event.Remark, event.RequestID, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType, entry.Payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOrder(ctx context.Context, orderID id.OrderID) ([]models.Event, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, order_id, type, actor_id, from_status, to_status, remark, request_id, created_at
		FROM workflow_events WHERE order_id = $1 ORDER BY created_at, id`, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("list workflow events: %w", err)
	}
	defer rows.Close()
	var out []models.Event
	for rows.Next() {
		var (
			e              models.Event
			eventID, order uuid.UUID
			actor          uuid.NullUUID
		)
		if err := rows.Scan(&eventID, &order, &e.Type, &actor, &e.FromStatus, &e.ToStatus,
			&e.Remark, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.OrderID = id.OrderID(order)
		e.ActorID = postgres.FromNull[id.UserID](actor)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Unpublished locks up to limit pending outbox rows. Concurrent relays skip
// each other's rows, so it must run inside a transaction.
func (s *PostgresStore) Unpublished(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY created_at, id LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()
	var out []models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, 0, len(ids))
	for _, v := range ids {
		raw = append(raw, v.String())
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[]) AND published_at IS NULL`,
		at, pq.Array(raw))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
