package article

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

const articleColumns = `id, book_id, author_id, snum, title, book_page, article_page, status,
	writing_mode_origin, writing_mode, content_image, content_text, operator_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		a                    models.Article
		articleID            uuid.UUID
		book, author, opUser uuid.NullUUID
	)
	if err := row.Scan(&articleID, &book, &author, &a.Snum, &a.Title, &a.BookPage, &a.ArticlePage, &a.Status,
		&a.WritingModeOrigin, &a.WritingMode, &a.ContentImage, &a.ContentText, &opUser, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.ArticleID(articleID)
	a.BookID = postgres.FromNull[id.BookID](book)
	a.AuthorID = postgres.FromNull[id.AuthorID](author)
	a.OperatorID = postgres.FromNull[id.UserID](opUser)
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Article) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(a.ID), postgres.NullUUID(a.BookID), postgres.NullUUID(a.AuthorID), a.Snum, a.Title,
		a.BookPage, a.ArticlePage, string(a.Status), string(a.WritingModeOrigin), string(a.WritingMode),
		a.ContentImage, a.ContentText, postgres.NullUUID(a.OperatorID), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Article) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE articles SET book_id = $2, author_id = $3, snum = $4, title = $5, book_page = $6,
			article_page = $7, status = $8, writing_mode_origin = $9, writing_mode = $10,
			content_image = $11, content_text = $12, operator_id = $13, updated_at = $14
		WHERE id = $1`,
		uuid.UUID(a.ID), postgres.NullUUID(a.BookID), postgres.NullUUID(a.AuthorID), a.Snum, a.Title,
		a.BookPage, a.ArticlePage, string(a.Status), string(a.WritingModeOrigin), string(a.WritingMode),
		a.ContentImage, a.ContentText, postgres.NullUUID(a.OperatorID), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, articleID id.ArticleID) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, uuid.UUID(articleID))
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, articleID id.ArticleID) (*models.Article, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, uuid.UUID(articleID))
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.ArticleID) ([]*models.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1::uuid[])`, postgres.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter models.ArticleFilter, page paging.Page) ([]*models.Article, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + search + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %[1]s OR snum ILIKE %[1]s OR content_text ILIKE %[1]s)", p))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+"::text[])")
	}
	if !filter.BookID.IsNil() {
		where = append(where, "book_id = "+arg(uuid.UUID(filter.BookID)))
	}
	if !filter.OperatorID.IsNil() {
		where = append(where, "operator_id = "+arg(uuid.UUID(filter.OperatorID)))
	}
	ranges := []struct {
		col string
		r   models.TimeRange
	}{{"created_at", filter.Created}, {"updated_at", filter.Updated}}
	for _, tr := range ranges {
		if !tr.r.From.IsZero() {
			where = append(where, tr.col+" >= "+arg(tr.r.From))
		}
		if !tr.r.To.IsZero() {
			where = append(where, tr.col+" <= "+arg(tr.r.To))
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := postgres.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM articles`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}
	query := `SELECT ` + articleColumns + ` FROM articles` + clause +
		fmt.Sprintf(` ORDER BY created_at, id LIMIT %s OFFSET %s`, arg(page.Size), arg(page.Offset()))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	articles, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (s *PostgresStore) CountByBook(ctx context.Context, bookID id.BookID) (int, error) {
	var n int
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM articles WHERE book_id = $1`, uuid.UUID(bookID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count articles by book: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByAuthor(ctx context.Context, authorID id.AuthorID) (int, error) {
	var n int
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM articles WHERE author_id = $1`, uuid.UUID(authorID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count articles by author: %w", err)
	}
	return n, nil
}

func collect(rows *sql.Rows) ([]*models.Article, error) {
	defer rows.Close()
	var out []*models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
