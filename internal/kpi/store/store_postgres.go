package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"findiff/internal/kpi/models"
	"findiff/internal/platform/postgres"
	id "findiff/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Add inserts the records in one statement inside the caller's transaction.
func (s *PostgresStore) Add(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*7)
	for _, r := range records {
		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args, uuid.UUID(r.ID), uuid.UUID(r.UserID), string(r.Type), r.Count,
			string(r.TriggerStep), postgres.NullUUID(r.OrderID), r.CreatedAt)
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO kpi_records (id, user_id, type, count, trigger_step, order_id, created_at) VALUES `+
			strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("add kpi records: %w", err)
	}
	return nil
}

func (s *PostgresStore) Totals(ctx context.Context, filter models.Filter) ([]models.TypeTotal, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.UserID.IsNil() {
		where = append(where, "user_id = "+arg(uuid.UUID(filter.UserID)))
	}
	if !filter.Created.From.IsZero() {
		where = append(where, "created_at >= "+arg(filter.Created.From))
	}
	if !filter.Created.To.IsZero() {
		where = append(where, "created_at <= "+arg(filter.Created.To))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT user_id, type, sum(count) FROM kpi_records`+clause+
			` GROUP BY user_id, type ORDER BY user_id, type`, args...)
	if err != nil {
		return nil, fmt.Errorf("kpi totals: %w", err)
	}
	defer rows.Close()
	var out []models.TypeTotal
	for rows.Next() {
		var (
			t      models.TypeTotal
			userID uuid.UUID
		)
		if err := rows.Scan(&userID, &t.Type, &t.Total); err != nil {
			return nil, fmt.Errorf("scan kpi total: %w", err)
		}
		t.UserID = id.UserID(userID)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByOrder(ctx context.Context, orderID id.OrderID) ([]models.Record, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, user_id, type, count, trigger_step, order_id, created_at
		FROM kpi_records WHERE order_id = $1 ORDER BY created_at, id`, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("list kpi records: %w", err)
	}
	defer rows.Close()
	var out []models.Record
	for rows.Next() {
		var (
			r             models.Record
			recID, userID uuid.UUID
			order         uuid.NullUUID
		)
		if err := rows.Scan(&recID, &userID, &r.Type, &r.Count, &r.TriggerStep, &order, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan kpi record: %w", err)
		}
		r.ID = id.KPIID(recID)
		r.UserID = id.UserID(userID)
		r.OrderID = postgres.FromNull[id.OrderID](order)
		out = append(out, r)
	}
	return out, rows.Err()
}
