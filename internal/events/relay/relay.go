// Package relay publishes outbox rows to Kafka and marks them published.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"findiff/internal/events/models"
	"findiff/internal/platform/kafka"
	"findiff/pkg/platform/circuit"
)

var (
	outboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findiff_outbox_published_total",
		Help: "Outbox rows published to Kafka",
	})
	outboxFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findiff_outbox_publish_failures_total",
		Help: "Outbox batches that failed to publish",
	})
	outboxLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "findiff_outbox_lag_seconds",
		Help: "Age of the oldest outbox row in the last batch",
	})
)

type Outbox interface {
	Unpublished(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Relay struct {
	outbox   Outbox
	producer Producer
	tx       TxRunner
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
	breaker  *circuit.Breaker
}

type Option func(*Relay)

func WithTxRunner(tx TxRunner) Option {
	return func(r *Relay) {
		r.tx = tx
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithBreaker replaces the breaker that pauses flushing while Kafka is
// failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func New(outbox Outbox, producer Producer, opts ...Option) *Relay {
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		interval: time.Second,
		batch:    100,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("outbox-relay",
			circuit.WithCooldown(10*r.interval),
			circuit.WithClock(r.now),
		)
	}
	return r
}

// Run flushes the outbox every interval until ctx is cancelled. Failed
// batches stay unpublished and are retried on a later tick. Repeated failures
// open the breaker, after which only one probe runs per cooldown.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.interval.String(), "batch", r.batch)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	if !r.breaker.Allow() {
		return
	}
	_, err := r.Flush(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		outboxFailures.Inc()
		r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.logger.WarnContext(ctx, "outbox relay paused", "breaker", r.breaker.Name())
		}
		return
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "outbox relay resumed", "breaker", r.breaker.Name())
	}
}

// Flush publishes one batch and returns how many rows it marked published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var published int
	err := r.runInTx(ctx, func(ctx context.Context) error {
		entries, err := r.outbox.Unpublished(ctx, r.batch)
		if err != nil || len(entries) == 0 {
			return err
		}
		now := r.now()
		outboxLag.Set(now.Sub(entries[0].CreatedAt).Seconds())

		msgs := make([]kafka.Message, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, kafka.Message{
				Key:   e.AggregateID,
				Value: e.Payload,
				Headers: map[string]string{
					"event_type":     e.EventType,
					"aggregate_type": e.AggregateType,
					"outbox_id":      e.ID.String(),
				},
			})
			ids = append(ids, e.ID)
		}
		if err := r.producer.Publish(ctx, msgs...); err != nil {
			return err
		}
		if err := r.outbox.MarkPublished(ctx, ids, now); err != nil {
			return err
		}
		published = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	outboxPublished.Add(float64(published))
	return published, nil
}

func (r *Relay) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.RunInTx(ctx, fn)
}
