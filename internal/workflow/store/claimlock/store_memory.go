// Package claimlock provides short-lived named locks that serialize
// concurrent applies by the same worker.
package claimlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"findiff/pkg/platform/sentinel"
)

type Clock func() time.Time

type lease struct {
	token     string
	expiresAt time.Time
}

// InMemoryLock holds leases in process memory. Expired leases are free.
type InMemoryLock struct {
	mu     sync.Mutex
	leases map[string]lease
	now    Clock
}

type InMemoryOption func(*InMemoryLock)

func WithClock(c Clock) InMemoryOption {
	return func(l *InMemoryLock) {
		l.now = c
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemoryLock {
	l := &InMemoryLock{leases: make(map[string]lease), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes key for ttl and returns the lease token, or sentinel.ErrLocked
// while another lease is live.
func (l *InMemoryLock) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return "", sentinel.ErrLocked
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

// Release frees key if token still owns it.
func (l *InMemoryLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
