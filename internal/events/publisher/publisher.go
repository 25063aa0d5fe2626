// Package publisher emits workflow events to a store, either inline or
// through a bounded buffer drained by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"findiff/internal/events/models"
	id "findiff/pkg/domain"
	"findiff/pkg/requestcontext"
)

var ErrBufferFull = errors.New("event buffer full")

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "findiff_workflow_events_dropped_total",
	Help: "Workflow events dropped because the async buffer was full",
})

type Store interface {
	Append(ctx context.Context, event models.Event) error
	ListByOrder(ctx context.Context, orderID id.OrderID) ([]models.Event, error)
}

type Publisher struct {
	store  Store
	logger *slog.Logger

	buffer    chan models.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue events instead of writing them inline.
// Async events are written outside the caller's transaction.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan models.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit fills the id, timestamp and request id when unset, then stores the
// event. In sync mode the write joins the transaction carried by ctx.
func (p *Publisher) Emit(ctx context.Context, event models.Event) error {
	if event.ID.IsNil() {
		event.ID = id.EventID(uuid.New())
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.buffer <- event:
		return nil
	default:
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		eventsDropped.Inc()
		p.logger.WarnContext(ctx, "dropping workflow event",
			"order_id", event.OrderID.String(), "type", string(event.Type), "request_id", event.RequestID)
		return ErrBufferFull
	}
}

func (p *Publisher) List(ctx context.Context, orderID id.OrderID) ([]models.Event, error) {
	return p.store.ListByOrder(ctx, orderID)
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to store workflow event",
				"order_id", event.OrderID.String(), "type", string(event.Type), "error", err)
		}
	}
}

// Close stops accepting events and waits until the buffer is drained.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
		}
	})
	p.wg.Wait()
}
