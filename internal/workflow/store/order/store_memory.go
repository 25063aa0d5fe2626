// Package order stores audit orders in memory or PostgreSQL.
package order

import (
	"context"
	"sort"
	"sync"

	"findiff/internal/workflow/models"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
)

// InMemoryOrderStore keeps orders in a map. Claims are not row-locked; the
// workflow service serializes them through its transaction runner.
type InMemoryOrderStore struct {
	mu      sync.RWMutex
	orders  map[id.OrderID]*models.Order
	serials map[string]id.OrderID
}

func New() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders:  make(map[id.OrderID]*models.Order),
		serials: make(map[string]id.OrderID),
	}
}

func (s *InMemoryOrderStore) Create(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.serials[o.SerialID]; ok {
		return sentinel.ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	s.serials[o.SerialID] = o.ID
	return nil
}

func (s *InMemoryOrderStore) Update(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *InMemoryOrderStore) Delete(_ context.Context, orderID id.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.serials, o.SerialID)
	delete(s.orders, orderID)
	return nil
}

func (s *InMemoryOrderStore) FindByID(_ context.Context, orderID id.OrderID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.orders[orderID]; ok {
		return o.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryOrderStore) FindByIDs(_ context.Context, ids []id.OrderID) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Order, 0, len(ids))
	for _, orderID := range ids {
		if o, ok := s.orders[orderID]; ok {
			out = append(out, o.Clone())
		}
	}
	sortOrders(out)
	return out, nil
}

// FindOwned returns the oldest order matching any of the assignments for
// user.
func (s *InMemoryOrderStore) FindOwned(_ context.Context, user id.UserID, assignments []models.Assignment) (*models.Order, error) {
	return s.oldest(func(o *models.Order) bool {
		for _, a := range assignments {
			if o.Matches(user, a) {
				return true
			}
		}
		return false
	})
}

// ClaimCandidate returns the oldest order in status whose first reviewer is
// not exclude.
func (s *InMemoryOrderStore) ClaimCandidate(_ context.Context, status models.OrderStatus, exclude id.UserID) (*models.Order, error) {
	return s.oldest(func(o *models.Order) bool {
		if o.Status != status {
			return false
		}
		return exclude.IsNil() || o.FirstUserID() != exclude
	})
}

func (s *InMemoryOrderStore) oldest(match func(*models.Order) bool) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Order
	for _, o := range s.orders {
		if match(o) && (best == nil || less(o, best)) {
			best = o
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return best.Clone(), nil
}

func (s *InMemoryOrderStore) matching(filter models.OrderFilter) []*models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Order
	for _, o := range s.orders {
		if filter.Matches(o) {
			matched = append(matched, o.Clone())
		}
	}
	sortOrders(matched)
	return matched
}

// List returns matching orders ordered by creation time.
func (s *InMemoryOrderStore) List(_ context.Context, filter models.OrderFilter, page paging.Page) ([]*models.Order, int, error) {
	matched := s.matching(filter)
	return paging.Slice(matched, page), len(matched), nil
}

func (s *InMemoryOrderStore) Count(_ context.Context, filter models.OrderFilter) (int, error) {
	return len(s.matching(filter)), nil
}

// CountByArticle counts the orders that review articleID.
func (s *InMemoryOrderStore) CountByArticle(_ context.Context, articleID id.ArticleID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.orders {
		if o.ArticleID == articleID {
			n++
		}
	}
	return n, nil
}

// ListByBook returns every order of a book, oldest first.
func (s *InMemoryOrderStore) ListByBook(_ context.Context, bookID id.BookID) ([]*models.Order, error) {
	return s.matching(models.OrderFilter{BookID: bookID}), nil
}

// QABooks summarizes books whose orders are all waiting for or in QA.
func (s *InMemoryOrderStore) QABooks(_ context.Context) ([]models.BookQAStat, error) {
	s.mu.RLock()
	stats := make(map[id.BookID]*models.BookQAStat)
	excluded := make(map[id.BookID]bool)
	for _, o := range s.orders {
		if o.BookID.IsNil() {
			continue
		}
		st, ok := stats[o.BookID]
		if !ok {
			st = &models.BookQAStat{BookID: o.BookID}
			stats[o.BookID] = st
		}
		st.Total++
		switch o.Status {
		case models.StatusQAUnassigned:
			st.Unassigned++
		case models.StatusQAPending:
			st.Pending++
		default:
			excluded[o.BookID] = true
		}
	}
	s.mu.RUnlock()

	out := make([]models.BookQAStat, 0, len(stats))
	for bookID, st := range stats {
		if !excluded[bookID] {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BookID.String() < out[j].BookID.String()
	})
	return out, nil
}

func less(a, b *models.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func sortOrders(orders []*models.Order) {
	sort.Slice(orders, func(i, j int) bool { return less(orders[i], orders[j]) })
}
