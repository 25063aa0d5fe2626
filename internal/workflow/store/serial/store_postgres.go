package serial

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"findiff/internal/platform/postgres"
)

// PostgresSequence keeps counters in serial_sequences. The upsert joins the
// caller's transaction, so a rolled back order does not burn a number.
type PostgresSequence struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresSequence {
	return &PostgresSequence{db: db}
}

func (s *PostgresSequence) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	var last int64
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO serial_sequences (prefix, day, last) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE SET last = serial_sequences.last + 1
		RETURNING last`,
		prefix, day.Format("2006-01-02"),
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("next serial: %w", err)
	}
	return last, nil
}
