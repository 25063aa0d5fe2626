package relay

//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"findiff/internal/events/models"
	"findiff/internal/events/relay/mocks"
	"findiff/internal/events/store"
	"findiff/internal/platform/kafka"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/circuit"
	"findiff/pkg/platform/tx"
)

func seed(t *testing.T, s *store.InMemoryStore, n int) id.OrderID {
	t.Helper()
	orderID := id.OrderID(uuid.New())
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i := range n {
		require.NoError(t, s.Append(context.Background(), models.Event{
			ID:        id.EventID(uuid.New()),
			OrderID:   orderID,
			Type:      models.TypeOrderSubmitted,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return orderID
}

func TestFlushPublishesAndMarks(t *testing.T) {
	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	s := store.NewInMemory()
	orderID := seed(t, s, 3)

	now := time.Date(2026, 2, 1, 8, 1, 0, 0, time.UTC)
	r := New(s, producer, WithBatchSize(2), WithTxRunner(tx.NewMemoryRunner()), WithClock(func() time.Time { return now }))

	var got []kafka.Message
	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msgs ...kafka.Message) error {
			got = append(got, msgs...)
			return nil
		}).Times(2)

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to publish")

	require.Len(t, got, 3)
	for _, m := range got {
		assert.Equal(t, orderID.String(), m.Key)
		assert.Equal(t, string(models.TypeOrderSubmitted), m.Headers["event_type"])
	}
}

func TestFlushKeepsRowsWhenPublishFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	s := store.NewInMemory()
	seed(t, s, 1)
	r := New(s, producer)

	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable"))
	_, err := r.Flush(context.Background())
	require.Error(t, err)

	pending, err := s.Unpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	s := store.NewInMemory()
	seed(t, s, 1)

	published := make(chan struct{})
	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, ...kafka.Message) error {
			close(published)
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	r := New(s, producer, WithInterval(5*time.Millisecond))
	go func() { done <- r.Run(ctx) }()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not publish")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestTickPausesWhileBreakerOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	s := store.NewInMemory()
	seed(t, s, 2)

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	r := New(s, producer, WithBreaker(breaker))
	ctx := context.Background()

	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable")).Times(2)
	r.tick(ctx)
	r.tick(ctx)
	require.True(t, breaker.IsOpen())

	// no Publish expected while cooling down
	r.tick(ctx)

	now = now.Add(time.Minute)
	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	r.tick(ctx)
	assert.False(t, breaker.IsOpen())

	pending, err := s.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDefaultBreakerProbesEveryTenIntervals(t *testing.T) {
	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	s := store.NewInMemory()
	seed(t, s, 1)

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	r := New(s, producer,
		WithInterval(2*time.Second),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable")).Times(5)
	for range 5 {
		r.tick(ctx)
	}
	require.True(t, r.breaker.IsOpen())

	now = now.Add(19 * time.Second)
	r.tick(ctx)

	now = now.Add(time.Second)
	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable"))
	r.tick(ctx)
	r.tick(ctx)
	assert.True(t, r.breaker.IsOpen())

	now = now.Add(20 * time.Second)
	producer.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	r.tick(ctx)
	assert.True(t, r.breaker.IsOpen(), "one successful probe is not enough to close")

	now = now.Add(20 * time.Second)
	r.tick(ctx)
	assert.False(t, r.breaker.IsOpen())
}
