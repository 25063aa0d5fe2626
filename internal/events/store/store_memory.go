// Package store persists workflow events and their outbox rows.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"findiff/internal/events/models"
	id "findiff/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.OrderID][]models.Event
	outbox []*models.OutboxEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.OrderID][]models.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event models.Event) error {
	entry, err := models.NewOutboxEntry(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.OrderID] = append(s.events[event.OrderID], event)
	s.outbox = append(s.outbox, &entry)
	return nil
}

// ListByOrder returns an order's events oldest first.
func (s *InMemoryStore) ListByOrder(_ context.Context, orderID id.OrderID) ([]models.Event, error) {
	s.mu.RLock()
	out := append([]models.Event{}, s.events[orderID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Unpublished returns up to limit outbox rows in creation order.
func (s *InMemoryStore) Unpublished(_ context.Context, limit int) ([]models.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OutboxEntry
	for _, e := range s.outbox {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, v := range ids {
		set[v] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if _, ok := set[e.ID]; ok && e.PublishedAt == nil {
			published := at
			e.PublishedAt = &published
		}
	}
	return nil
}
