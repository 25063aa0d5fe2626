package claimlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findiff/pkg/platform/sentinel"
)

func TestInMemoryLock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lock := NewInMemory(WithClock(func() time.Time { return now }))

	token, err := lock.Acquire(ctx, "apply:alice", time.Second)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	assert.ErrorIs(t, err, sentinel.ErrLocked)

	_, err = lock.Acquire(ctx, "apply:bob", time.Second)
	require.NoError(t, err, "keys are independent")

	require.NoError(t, lock.Release(ctx, "apply:alice", "not-the-owner"))
	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	assert.ErrorIs(t, err, sentinel.ErrLocked, "foreign token does not release")

	require.NoError(t, lock.Release(ctx, "apply:alice", token))
	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = lock.Acquire(ctx, "apply:alice", time.Second)
	require.NoError(t, err, "expired leases are free")
}
