// Package serial hands out daily sequence numbers for order and QA serials.
package serial

import (
	"context"
	"sync"
	"time"
)

// InMemorySequence counts per prefix per calendar day.
type InMemorySequence struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewInMemory() *InMemorySequence {
	return &InMemorySequence{last: make(map[string]int64)}
}

// Next returns the next number for prefix on day, starting at 1.
func (s *InMemorySequence) Next(_ context.Context, prefix string, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey(prefix, day)
	s.last[key]++
	return s.last[key], nil
}

func dayKey(prefix string, day time.Time) string {
	return prefix + ":" + day.Format("20060102")
}
