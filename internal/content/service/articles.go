package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

type ArticleCommand struct {
	BookID            id.BookID
	AuthorID          id.AuthorID
	Snum              string
	Title             string
	BookPage          int
	ArticlePage       int
	Status            models.ArticleStatus
	WritingModeOrigin models.WritingMode
	WritingMode       models.WritingMode
	ContentImage      string
	ContentText       string
}

func (c ArticleCommand) apply(a *models.Article) {
	a.BookID = c.BookID
	a.AuthorID = c.AuthorID
	a.Snum = strings.TrimSpace(c.Snum)
	a.Title = strings.TrimSpace(c.Title)
	a.BookPage = c.BookPage
	a.ArticlePage = c.ArticlePage
	if c.Status != "" {
		a.Status = c.Status
	}
	a.WritingModeOrigin = c.WritingModeOrigin
	a.WritingMode = c.WritingMode
	a.ContentImage = c.ContentImage
	a.ContentText = c.ContentText
}

// ArticleDetail is an article with its book and author resolved.
type ArticleDetail struct {
	*models.Article
	AuthorName string       `json:"author_name"`
	Book       *models.Book `json:"book,omitempty"`
}

func (s *Service) checkRefs(ctx context.Context, a *models.Article) error {
	if !a.BookID.IsNil() {
		if _, err := s.GetBook(ctx, a.BookID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.New(dErrors.CodeValidation, "unknown book")
			}
			return err
		}
	}
	if !a.AuthorID.IsNil() {
		if _, err := s.GetAuthor(ctx, a.AuthorID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.New(dErrors.CodeValidation, "unknown author")
			}
			return err
		}
	}
	return nil
}

// CreateArticle stores a new article. It joins the caller's transaction when
// one is open, which is how order initialisation creates its article.
func (s *Service) CreateArticle(ctx context.Context, cmd ArticleCommand) (*models.Article, error) {
	now := requestcontext.Now(ctx)
	a := &models.Article{
		ID:         id.ArticleID(uuid.New()),
		Status:     models.ArticleStatusUnaudit,
		OperatorID: requestcontext.UserID(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	cmd.apply(a)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, a); err != nil {
		return nil, err
	}
	if err := s.articles.Create(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create article")
	}
	s.logAudit(ctx, "article_created", "article_id", a.ID.String())
	return a, nil
}

func (s *Service) UpdateArticle(ctx context.Context, articleID id.ArticleID, cmd ArticleCommand) (*models.Article, error) {
	a, err := s.article(ctx, articleID)
	if err != nil {
		return nil, err
	}
	cmd.apply(a)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, a); err != nil {
		return nil, err
	}
	a.OperatorID = requestcontext.UserID(ctx)
	a.UpdatedAt = requestcontext.Now(ctx)
	if err := s.articles.Update(ctx, a); err != nil {
		return nil, storeError(err, "article not found", "failed to update article")
	}
	s.logAudit(ctx, "article_updated", "article_id", a.ID.String())
	return a, nil
}

// DeleteArticle refuses to remove an article that a review order points at.
func (s *Service) DeleteArticle(ctx context.Context, articleID id.ArticleID) error {
	return s.runInTx(ctx, func(ctx context.Context) error {
		if s.refs != nil {
			n, err := s.refs.CountByArticle(ctx, articleID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check article usage")
			}
			if n > 0 {
				return dErrors.New(dErrors.CodeConflict, "article is under review")
			}
		}
		if err := s.articles.Delete(ctx, articleID); err != nil {
			return storeError(err, "article not found", "failed to delete article")
		}
		s.logAudit(ctx, "article_deleted", "article_id", articleID.String())
		return nil
	})
}

func (s *Service) article(ctx context.Context, articleID id.ArticleID) (*models.Article, error) {
	a, err := s.articles.FindByID(ctx, articleID)
	if err != nil {
		return nil, storeError(err, "article not found", "failed to load article")
	}
	return a, nil
}

func (s *Service) GetArticle(ctx context.Context, articleID id.ArticleID) (*ArticleDetail, error) {
	a, err := s.article(ctx, articleID)
	if err != nil {
		return nil, err
	}
	details, err := s.resolve(ctx, []*models.Article{a})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

// Articles loads articles by id. Unknown ids are omitted.
func (s *Service) Articles(ctx context.Context, ids []id.ArticleID) (map[id.ArticleID]*models.Article, error) {
	out := make(map[id.ArticleID]*models.Article, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	articles, err := s.articles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load articles")
	}
	for _, a := range articles {
		out[a.ID] = a
	}
	return out, nil
}

func (s *Service) ListArticles(ctx context.Context, filter models.ArticleFilter, page paging.Page) (paging.Result[*ArticleDetail], error) {
	items, total, err := s.articles.List(ctx, filter, page)
	if err != nil {
		return paging.Result[*ArticleDetail]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list articles")
	}
	details, err := s.resolve(ctx, items)
	if err != nil {
		return paging.Result[*ArticleDetail]{}, err
	}
	return paging.NewResult(details, total, page), nil
}

// resolve attaches books and author names with one lookup per kind.
func (s *Service) resolve(ctx context.Context, articles []*models.Article) ([]*ArticleDetail, error) {
	var (
		bookIDs   []id.BookID
		authorIDs []id.AuthorID
	)
	for _, a := range articles {
		if !a.BookID.IsNil() {
			bookIDs = append(bookIDs, a.BookID)
		}
		if !a.AuthorID.IsNil() {
			authorIDs = append(authorIDs, a.AuthorID)
		}
	}
	books, err := s.Books(ctx, compactIDs(bookIDs))
	if err != nil {
		return nil, err
	}
	names, err := s.AuthorNames(ctx, compactIDs(authorIDs))
	if err != nil {
		return nil, err
	}
	out := make([]*ArticleDetail, 0, len(articles))
	for _, a := range articles {
		out = append(out, &ArticleDetail{Article: a, AuthorName: names[a.AuthorID], Book: books[a.BookID]})
	}
	return out, nil
}

// Publish replaces an article's content with an accepted review result and
// releases it. It joins the caller's transaction.
func (s *Service) Publish(ctx context.Context, articleID id.ArticleID, result models.PublishResult) error {
	a, err := s.article(ctx, articleID)
	if err != nil {
		return err
	}
	if !result.WritingMode.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "writing mode must be horizontal or vertical")
	}
	a.ApplyPublish(result, requestcontext.UserID(ctx), requestcontext.Now(ctx))
	if err := s.articles.Update(ctx, a); err != nil {
		return storeError(err, "article not found", "failed to publish article")
	}
	s.logAudit(ctx, "article_published", "article_id", a.ID.String())
	return nil
}

// SetStatus moves an article between catalogue states without touching its
// content.
func (s *Service) SetStatus(ctx context.Context, articleID id.ArticleID, status models.ArticleStatus) error {
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid article status")
	}
	a, err := s.article(ctx, articleID)
	if err != nil {
		return err
	}
	if a.Status == status {
		return nil
	}
	a.Status = status
	a.UpdatedAt = requestcontext.Now(ctx)
	if err := s.articles.Update(ctx, a); err != nil {
		return storeError(err, "article not found", "failed to update article status")
	}
	return nil
}
