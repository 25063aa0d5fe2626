// Package store persists KPI records in memory or PostgreSQL.
package store

import (
	"context"
	"sort"
	"sync"

	"findiff/internal/kpi/models"
	id "findiff/pkg/domain"
)

type InMemoryKPIStore struct {
	mu      sync.RWMutex
	records []models.Record
}

func New() *InMemoryKPIStore {
	return &InMemoryKPIStore{}
}

func (s *InMemoryKPIStore) Add(_ context.Context, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// Totals sums counts per user per type, ordered by user then type.
func (s *InMemoryKPIStore) Totals(_ context.Context, filter models.Filter) ([]models.TypeTotal, error) {
	type key struct {
		user id.UserID
		typ  models.Type
	}
	sums := make(map[key]int)
	s.mu.RLock()
	for i := range s.records {
		r := &s.records[i]
		if filter.Matches(r) {
			sums[key{r.UserID, r.Type}] += r.Count
		}
	}
	s.mu.RUnlock()

	out := make([]models.TypeTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, models.TypeTotal{UserID: k.user, Type: k.typ, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// ListByOrder returns the records an order produced, oldest first.
func (s *InMemoryKPIStore) ListByOrder(_ context.Context, orderID id.OrderID) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, r := range s.records {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
