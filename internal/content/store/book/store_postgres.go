package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

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

const bookColumns = `id, snum, name, detail, dynasty, genre, pages, author_ids::text[], operator_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var (
		b         models.Book
		bookID    uuid.UUID
		authorIDs pq.StringArray
		operator  uuid.NullUUID
	)
	if err := row.Scan(&bookID, &b.Snum, &b.Name, &b.Detail, &b.Dynasty, &b.Genre, &b.Pages,
		&authorIDs, &operator, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.ID = id.BookID(bookID)
	b.OperatorID = postgres.FromNull[id.UserID](operator)
	authors, err := postgres.ParseUUIDs[id.AuthorID](authorIDs)
	if err != nil {
		return nil, err
	}
	b.AuthorIDs = authors
	return &b, nil
}

func (s *PostgresStore) Create(ctx context.Context, b *models.Book) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO books (id, snum, name, detail, dynasty, genre, pages, author_ids, operator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid[], $9, $10, $11)`,
		uuid.UUID(b.ID), b.Snum, b.Name, b.Detail, b.Dynasty, b.Genre, b.Pages,
		postgres.UUIDArray(b.AuthorIDs), postgres.NullUUID(b.OperatorID), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, b *models.Book) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE books SET snum = $2, name = $3, detail = $4, dynasty = $5, genre = $6, pages = $7,
			author_ids = $8::uuid[], operator_id = $9, updated_at = $10
		WHERE id = $1`,
		uuid.UUID(b.ID), b.Snum, b.Name, b.Detail, b.Dynasty, b.Genre, b.Pages,
		postgres.UUIDArray(b.AuthorIDs), postgres.NullUUID(b.OperatorID), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, bookID id.BookID) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM books WHERE id = $1`, uuid.UUID(bookID))
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, bookID id.BookID) (*models.Book, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, uuid.UUID(bookID))
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find book: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.BookID) ([]*models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ANY($1::uuid[])`, postgres.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter models.BookFilter, page paging.Page) ([]*models.Book, int, error) {
	clause := ""
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		clause = ` WHERE snum ILIKE $1 OR name ILIKE $1`
	}
	conn := postgres.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM books`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM books%s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		bookColumns, clause, len(args)-1, len(args))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	books, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (s *PostgresStore) CountByAuthor(ctx context.Context, authorID id.AuthorID) (int, error) {
	var n int
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM books WHERE $1 = ANY(author_ids)`, uuid.UUID(authorID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count books by author: %w", err)
	}
	return n, nil
}

func collect(rows *sql.Rows) ([]*models.Book, error) {
	defer rows.Close()
	var out []*models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
