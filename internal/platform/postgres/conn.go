package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"findiff/pkg/platform/tx"
)

// DBTX is the subset of *sql.DB and *sql.Tx that stores use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return db
}

// UUIDArray encodes typed ids as a text array; cast with $n::uuid[] in SQL.
func UUIDArray[T ~[16]byte](ids []T) any {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		out = append(out, uuid.UUID(v).String())
	}
	return pq.Array(out)
}

// NullUUID maps the zero id to SQL NULL.
func NullUUID[T ~[16]byte](v T) any {
	if uuid.UUID(v) == uuid.Nil {
		return nil
	}
	return uuid.UUID(v)
}

// ParseUUIDs converts a scanned text array back into typed ids.
func ParseUUIDs[T ~[16]byte](raw pq.StringArray) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, T(u))
	}
	return out, nil
}

// FromNull converts a nullable scanned uuid into a typed id.
func FromNull[T ~[16]byte](n uuid.NullUUID) T {
	if !n.Valid {
		return T(uuid.Nil)
	}
	return T(n.UUID)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
