package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
}

func TestNewBreakerIsClosed(t *testing.T) {
	b := New("outbox")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "outbox", b.Name())
	assert.Equal(t, "closed", b.State().String())
	assert.True(t, b.Allow())
}

func TestBreakerThresholds(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		results  []bool // true records a success
		wantOpen bool
	}{
		{"stays closed below the failure threshold", []Option{WithFailureThreshold(3)}, []bool{false, false}, false},
		{"opens at the failure threshold", []Option{WithFailureThreshold(3)}, []bool{false, false, false}, true},
		{"default threshold is five", nil, []bool{false, false, false, false, false}, true},
		{"a success clears the failure streak", []Option{WithFailureThreshold(3)}, []bool{false, false, true, false, false}, false},
		{"one success does not close", []Option{WithFailureThreshold(1)}, []bool{false, true}, true},
		{"two successes close", []Option{WithFailureThreshold(1)}, []bool{false, true, true}, false},
		{"a failure clears the success streak", []Option{WithFailureThreshold(1), WithSuccessThreshold(3)}, []bool{false, true, true, false, true, true}, true},
		{"three fresh successes close", []Option{WithFailureThreshold(1), WithSuccessThreshold(3)}, []bool{false, true, true, false, true, true, true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", tt.opts...)
			for _, ok := range tt.results {
				if ok {
					b.RecordSuccess()
				} else {
					b.RecordFailure()
				}
			}
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsTransitions(t *testing.T) {
	b := New("test", WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.Equal(t, StateChange{}, change)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
}

func TestBreakerProbesOncePerCooldown(t *testing.T) {
	clock := newClock()
	b := New("outbox-relay",
		WithFailureThreshold(1),
		WithCooldown(10*time.Second),
		WithClock(clock.Now),
	)
	b.RecordFailure()
	require.True(t, b.IsOpen())

	assert.False(t, b.Allow())
	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	assert.True(t, b.Allow(), "probe after the cooldown")
	assert.False(t, b.Allow(), "only one probe per cooldown")

	b.RecordFailure()
	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow(), "a failed probe restarts the cooldown")
	clock.Advance(time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerCooldownTracksPollInterval(t *testing.T) {
	interval := 3 * time.Second
	clock := newClock()
	b := New("outbox-relay", WithCooldown(10*interval), WithClock(clock.Now))
	for range 5 {
		b.RecordFailure()
	}
	require.True(t, b.IsOpen())

	clock.Advance(10*interval - time.Millisecond)
	assert.False(t, b.Allow())
	clock.Advance(time.Millisecond)
	assert.True(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	clock := newClock()
	b := New("test", WithFailureThreshold(1), WithClock(clock.Now))
	b.RecordFailure()
	require.False(t, b.Allow())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
