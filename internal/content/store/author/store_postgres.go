package author

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"findiff/internal/content/models"
	"findiff/internal/platform/postgres"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const authorColumns = `id, name, detail, dynasty, writing_school, operator_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthor(row rowScanner) (*models.Author, error) {
	var (
		a        models.Author
		authorID uuid.UUID
		operator uuid.NullUUID
	)
	if err := row.Scan(&authorID, &a.Name, &a.Detail, &a.Dynasty, &a.WritingSchool, &operator, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AuthorID(authorID)
	a.OperatorID = postgres.FromNull[id.UserID](operator)
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Author) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO authors (`+authorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(a.ID), a.Name, a.Detail, a.Dynasty, a.WritingSchool, postgres.NullUUID(a.OperatorID), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create author: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Author) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE authors SET name = $2, detail = $3, dynasty = $4, writing_school = $5, operator_id = $6, updated_at = $7
		WHERE id = $1`,
		uuid.UUID(a.ID), a.Name, a.Detail, a.Dynasty, a.WritingSchool, postgres.NullUUID(a.OperatorID), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, authorID id.AuthorID) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM authors WHERE id = $1`, uuid.UUID(authorID))
	if err != nil {
		return fmt.Errorf("delete author: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, authorID id.AuthorID) (*models.Author, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+authorColumns+` FROM authors WHERE id = $1`, uuid.UUID(authorID))
	a, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find author: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.AuthorID) ([]*models.Author, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+authorColumns+` FROM authors WHERE id = ANY($1::uuid[])`, postgres.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("find authors: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter models.AuthorFilter, page paging.Page) ([]*models.Author, int, error) {
	clause := ""
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		clause = ` WHERE name ILIKE $1 OR dynasty ILIKE $1 OR writing_school ILIKE $1`
	}
	conn := postgres.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM authors`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count authors: %w", err)
	}
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM authors%s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		authorColumns, clause, len(args)-1, len(args))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list authors: %w", err)
	}
	authors, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return authors, total, nil
}

func collect(rows *sql.Rows) ([]*models.Author, error) {
	defer rows.Close()
	var out []*models.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
