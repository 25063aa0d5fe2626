// Package book stores books in memory or PostgreSQL.
package book

import (
	"context"
	"sort"
	"sync"

	"findiff/internal/content/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

type InMemoryBookStore struct {
	mu    sync.RWMutex
	books map[id.BookID]*models.Book
}

func New() *InMemoryBookStore {
	return &InMemoryBookStore{books: make(map[id.BookID]*models.Book)}
}

func (s *InMemoryBookStore) Create(_ context.Context, b *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.ID]; ok {
		return sentinel.ErrConflict
	}
	s.books[b.ID] = b.Clone()
	return nil
}

func (s *InMemoryBookStore) Update(_ context.Context, b *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.books[b.ID] = b.Clone()
	return nil
}

func (s *InMemoryBookStore) Delete(_ context.Context, bookID id.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[bookID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.books, bookID)
	return nil
}

func (s *InMemoryBookStore) FindByID(_ context.Context, bookID id.BookID) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.books[bookID]; ok {
		return b.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryBookStore) FindByIDs(_ context.Context, ids []id.BookID) ([]*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Book, 0, len(ids))
	for _, bookID := range ids {
		if b, ok := s.books[bookID]; ok {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

// List returns matching books ordered by creation time.
func (s *InMemoryBookStore) List(_ context.Context, filter models.BookFilter, page paging.Page) ([]*models.Book, int, error) {
	s.mu.RLock()
	var matched []*models.Book
	for _, b := range s.books {
		if filter.Matches(b) {
			matched = append(matched, b.Clone())
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

// CountByAuthor reports how many books credit the author.
func (s *InMemoryBookStore) CountByAuthor(_ context.Context, authorID id.AuthorID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.books {
		for _, a := range b.AuthorIDs {
			if a == authorID {
				n++
				break
			}
		}
	}
	return n, nil
}
