// Package article stores articles in memory or PostgreSQL.
package article

import (
	"context"
	"sort"
	"sync"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

type InMemoryArticleStore struct {
	mu       sync.RWMutex
	articles map[id.ArticleID]*models.Article
}

func New() *InMemoryArticleStore {
	return &InMemoryArticleStore{articles: make(map[id.ArticleID]*models.Article)}
}

func (s *InMemoryArticleStore) Create(_ context.Context, a *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.ID]; ok {
		return sentinel.ErrConflict
	}
	s.articles[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryArticleStore) Update(_ context.Context, a *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.articles[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryArticleStore) Delete(_ context.Context, articleID id.ArticleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[articleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.articles, articleID)
	return nil
}

func (s *InMemoryArticleStore) FindByID(_ context.Context, articleID id.ArticleID) (*models.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.articles[articleID]; ok {
		return a.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryArticleStore) FindByIDs(_ context.Context, ids []id.ArticleID) ([]*models.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Article, 0, len(ids))
	for _, articleID := range ids {
		if a, ok := s.articles[articleID]; ok {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

// List returns matching articles ordered by creation time.
func (s *InMemoryArticleStore) List(_ context.Context, filter models.ArticleFilter, page paging.Page) ([]*models.Article, int, error) {
	s.mu.RLock()
	var matched []*models.Article
	for _, a := range s.articles {
		if filter.Matches(a) {
			matched = append(matched, a.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return paging.Slice(matched, page), len(matched), nil
}

func (s *InMemoryArticleStore) CountByBook(_ context.Context, bookID id.BookID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.articles {
		if a.BookID == bookID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryArticleStore) CountByAuthor(_ context.Context, authorID id.AuthorID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.articles {
		if a.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}
