// Package service implements author, book and article management and the
// publication of reviewed articles.
package service

import (
	"context"
	"log/slog"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

type AuthorStore interface {
	Create(ctx context.Context, a *models.Author) error
	Update(ctx context.Context, a *models.Author) error
	Delete(ctx context.Context, authorID id.AuthorID) error
	FindByID(ctx context.Context, authorID id.AuthorID) (*models.Author, error)
	FindByIDs(ctx context.Context, ids []id.AuthorID) ([]*models.Author, error)
	List(ctx context.Context, filter models.AuthorFilter, page paging.Page) ([]*models.Author, int, error)
}

type BookStore interface {
	Create(ctx context.Context, b *models.Book) error
	Update(ctx context.Context, b *models.Book) error
	Delete(ctx context.Context, bookID id.BookID) error
	FindByID(ctx context.Context, bookID id.BookID) (*models.Book, error)
	FindByIDs(ctx context.Context, ids []id.BookID) ([]*models.Book, error)
	List(ctx context.Context, filter models.BookFilter, page paging.Page) ([]*models.Book, int, error)
	CountByAuthor(ctx context.Context, authorID id.AuthorID) (int, error)
}

type ArticleStore interface {
	Create(ctx context.Context, a *models.Article) error
	Update(ctx context.Context, a *models.Article) error
	Delete(ctx context.Context, articleID id.ArticleID) error
	FindByID(ctx context.Context, articleID id.ArticleID) (*models.Article, error)
	FindByIDs(ctx context.Context, ids []id.ArticleID) ([]*models.Article, error)
	List(ctx context.Context, filter models.ArticleFilter, page paging.Page) ([]*models.Article, int, error)
	CountByBook(ctx context.Context, bookID id.BookID) (int, error)
	CountByAuthor(ctx context.Context, authorID id.AuthorID) (int, error)
}

// ArticleReferences counts review orders that point at an article.
type ArticleReferences interface {
	CountByArticle(ctx context.Context, articleID id.ArticleID) (int, error)
}

// TxRunner scopes multi-store writes to one unit of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	authors  AuthorStore
	books    BookStore
	articles ArticleStore
	refs     ArticleReferences
	tx       TxRunner
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithArticleReferences makes DeleteArticle refuse articles still under review.
func WithArticleReferences(refs ArticleReferences) Option {
	return func(s *Service) {
		s.refs = refs
	}
}

func New(authors AuthorStore, books BookStore, articles ArticleStore, opts ...Option) *Service {
	s := &Service{
		authors:  authors,
		books:    books,
		articles: articles,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	args := append(attributes,
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	)
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		args = append(args, "actor_id", actor.String())
	}
	s.logger.InfoContext(ctx, event, args...)
}
