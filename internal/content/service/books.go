package service

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

type BookCommand struct {
	Snum      string
	Name      string
	Detail    string
	Dynasty   string
	Genre     string
	Pages     int
	AuthorIDs []id.AuthorID
}

func (c BookCommand) apply(b *models.Book) {
	b.Snum = c.Snum
	b.Name = c.Name
	b.Detail = c.Detail
	b.Dynasty = c.Dynasty
	b.Genre = c.Genre
	b.Pages = c.Pages
	b.AuthorIDs = slices.Clone(c.AuthorIDs)
}

func (s *Service) requireAuthors(ctx context.Context, ids []id.AuthorID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.authors.FindByIDs(ctx, ids)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authors")
	}
	if len(found) != len(ids) {
		return dErrors.New(dErrors.CodeValidation, "unknown author")
	}
	return nil
}

func (s *Service) CreateBook(ctx context.Context, cmd BookCommand) (*models.Book, error) {
	now := requestcontext.Now(ctx)
	b := &models.Book{
		ID:         id.BookID(uuid.New()),
		OperatorID: requestcontext.UserID(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	cmd.apply(b)
	b.AuthorIDs = compactIDs(b.AuthorIDs)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireAuthors(ctx, b.AuthorIDs); err != nil {
		return nil, err
	}
	if err := s.books.Create(ctx, b); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create book")
	}
	s.logAudit(ctx, "book_created", "book_id", b.ID.String())
	return b, nil
}

func (s *Service) UpdateBook(ctx context.Context, bookID id.BookID, cmd BookCommand) (*models.Book, error) {
	b, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	cmd.apply(b)
	b.AuthorIDs = compactIDs(b.AuthorIDs)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireAuthors(ctx, b.AuthorIDs); err != nil {
		return nil, err
	}
	b.OperatorID = requestcontext.UserID(ctx)
	b.UpdatedAt = requestcontext.Now(ctx)
	if err := s.books.Update(ctx, b); err != nil {
		return nil, storeError(err, "book not found", "failed to update book")
	}
	s.logAudit(ctx, "book_updated", "book_id", b.ID.String())
	return b, nil
}

// DeleteBook refuses to remove a book that still has articles.
func (s *Service) DeleteBook(ctx context.Context, bookID id.BookID) error {
	return s.runInTx(ctx, func(ctx context.Context) error {
		n, err := s.articles.CountByBook(ctx, bookID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check book usage")
		}
		if n > 0 {
			return dErrors.New(dErrors.CodeConflict, "book still has articles")
		}
		if err := s.books.Delete(ctx, bookID); err != nil {
			return storeError(err, "book not found", "failed to delete book")
		}
		s.logAudit(ctx, "book_deleted", "book_id", bookID.String())
		return nil
	})
}

func (s *Service) GetBook(ctx context.Context, bookID id.BookID) (*models.Book, error) {
	b, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		return nil, storeError(err, "book not found", "failed to load book")
	}
	return b, nil
}

func (s *Service) ListBooks(ctx context.Context, search string, page paging.Page) (paging.Result[*models.Book], error) {
	items, total, err := s.books.List(ctx, models.BookFilter{Search: search}, page)
	if err != nil {
		return paging.Result[*models.Book]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list books")
	}
	return paging.NewResult(items, total, page), nil
}

// Books loads books by id. Unknown ids are omitted.
func (s *Service) Books(ctx context.Context, ids []id.BookID) (map[id.BookID]*models.Book, error) {
	out := make(map[id.BookID]*models.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	books, err := s.books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load books")
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func compactIDs[T ~[16]byte](ids []T) []T {
	seen := make(map[T]struct{}, len(ids))
	out := ids[:0]
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
