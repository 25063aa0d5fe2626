package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/requestcontext"
)

type AuthorCommand struct {
	Name          string
	Detail        string
	Dynasty       string
	WritingSchool string
}

func (c AuthorCommand) apply(a *models.Author) {
	a.Name = c.Name
	a.Detail = c.Detail
	a.Dynasty = c.Dynasty
	a.WritingSchool = c.WritingSchool
}

func (s *Service) CreateAuthor(ctx context.Context, cmd AuthorCommand) (*models.Author, error) {
	now := requestcontext.Now(ctx)
	a := &models.Author{
		ID:         id.AuthorID(uuid.New()),
		OperatorID: requestcontext.UserID(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	cmd.apply(a)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.authors.Create(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create author")
	}
	s.logAudit(ctx, "author_created", "author_id", a.ID.String())
	return a, nil
}

func (s *Service) UpdateAuthor(ctx context.Context, authorID id.AuthorID, cmd AuthorCommand) (*models.Author, error) {
	a, err := s.GetAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	cmd.apply(a)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.OperatorID = requestcontext.UserID(ctx)
	a.UpdatedAt = requestcontext.Now(ctx)
	if err := s.authors.Update(ctx, a); err != nil {
		return nil, storeError(err, "author not found", "failed to update author")
	}
	s.logAudit(ctx, "author_updated", "author_id", a.ID.String())
	return a, nil
}

// DeleteAuthor refuses to remove an author still credited by a book or an
// article.
func (s *Service) DeleteAuthor(ctx context.Context, authorID id.AuthorID) error {
	return s.runInTx(ctx, func(ctx context.Context) error {
		books, err := s.books.CountByAuthor(ctx, authorID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check author usage")
		}
		articles, err := s.articles.CountByAuthor(ctx, authorID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check author usage")
		}
		if books+articles > 0 {
			return dErrors.New(dErrors.CodeConflict, "author is still referenced by books or articles")
		}
		if err := s.authors.Delete(ctx, authorID); err != nil {
			return storeError(err, "author not found", "failed to delete author")
		}
		s.logAudit(ctx, "author_deleted", "author_id", authorID.String())
		return nil
	})
}

func (s *Service) GetAuthor(ctx context.Context, authorID id.AuthorID) (*models.Author, error) {
	a, err := s.authors.FindByID(ctx, authorID)
	if err != nil {
		return nil, storeError(err, "author not found", "failed to load author")
	}
	return a, nil
}

func (s *Service) ListAuthors(ctx context.Context, search string, page paging.Page) (paging.Result[*models.Author], error) {
	items, total, err := s.authors.List(ctx, models.AuthorFilter{Search: search}, page)
	if err != nil {
		return paging.Result[*models.Author]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list authors")
	}
	return paging.NewResult(items, total, page), nil
}

// AuthorNames maps the given ids to author names. Unknown ids are omitted.
func (s *Service) AuthorNames(ctx context.Context, ids []id.AuthorID) (map[id.AuthorID]string, error) {
	out := make(map[id.AuthorID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	authors, err := s.authors.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authors")
	}
	for _, a := range authors {
		out[a.ID] = a.Name
	}
	return out, nil
}

func storeError(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
