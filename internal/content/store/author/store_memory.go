// Package author stores authors in memory or PostgreSQL.
package author

import (
	"context"
	"sort"
	"sync"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

type InMemoryAuthorStore struct {
	mu      sync.RWMutex
	authors map[id.AuthorID]*models.Author
}

func New() *InMemoryAuthorStore {
	return &InMemoryAuthorStore{authors: make(map[id.AuthorID]*models.Author)}
}

func (s *InMemoryAuthorStore) Create(_ context.Context, a *models.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[a.ID]; ok {
		return sentinel.ErrConflict
	}
	s.authors[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryAuthorStore) Update(_ context.Context, a *models.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.authors[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryAuthorStore) Delete(_ context.Context, authorID id.AuthorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[authorID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.authors, authorID)
	return nil
}

func (s *InMemoryAuthorStore) FindByID(_ context.Context, authorID id.AuthorID) (*models.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.authors[authorID]; ok {
		return a.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryAuthorStore) FindByIDs(_ context.Context, ids []id.AuthorID) ([]*models.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Author, 0, len(ids))
	for _, authorID := range ids {
		if a, ok := s.authors[authorID]; ok {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

// List returns matching authors ordered by creation time.
func (s *InMemoryAuthorStore) List(_ context.Context, filter models.AuthorFilter, page paging.Page) ([]*models.Author, int, error) {
	s.mu.RLock()
	var matched []*models.Author
	for _, a := range s.authors {
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
