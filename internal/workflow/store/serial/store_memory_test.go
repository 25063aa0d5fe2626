package serial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySequence(t *testing.T) {
	ctx := context.Background()
	seq := NewInMemory()
	day := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)

	var wg sync.WaitGroup
	seen := make(chan int64, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, "AUDIT", day)
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for n := range seen {
		unique[n] = true
	}
	assert.Len(t, unique, 50)
	assert.True(t, unique[1] && unique[50])

	n, err := seq.Next(ctx, "QA", day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "prefixes count independently")

	n, err = seq.Next(ctx, "AUDIT", day.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new day restarts the sequence")
}
