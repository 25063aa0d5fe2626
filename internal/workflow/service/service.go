// Package service implements the review pipeline: handing out orders,
// recording proofreading results, QA sampling and publication.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contentmodels "findiff/internal/content/models"
	contentsvc "findiff/internal/content/service"
	eventmodels "findiff/internal/events/models"
	kpimodels "findiff/internal/kpi/models"
	upmodels "findiff/internal/userprofile/models"
	"findiff/internal/workflow/models"
	"findiff/internal/workflow/store/claimlock"
	"findiff/internal/workflow/store/serial"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/requestcontext"
)

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	Update(ctx context.Context, o *models.Order) error
	Delete(ctx context.Context, orderID id.OrderID) error
	FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []id.OrderID) ([]*models.Order, error)
	FindOwned(ctx context.Context, user id.UserID, assignments []models.Assignment) (*models.Order, error)
	ClaimCandidate(ctx context.Context, status models.OrderStatus, exclude id.UserID) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter, page paging.Page) ([]*models.Order, int, error)
	Count(ctx context.Context, filter models.OrderFilter) (int, error)
	CountByArticle(ctx context.Context, articleID id.ArticleID) (int, error)
	ListByBook(ctx context.Context, bookID id.BookID) ([]*models.Order, error)
	QABooks(ctx context.Context) ([]models.BookQAStat, error)
}

// ClaimLock serializes applies by one worker.
type ClaimLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// Sequence hands out daily serial numbers per prefix.
type Sequence interface {
	Next(ctx context.Context, prefix string, day time.Time) (int64, error)
}

// ContentService is the catalogue the pipeline reads and publishes to.
type ContentService interface {
	CreateArticle(ctx context.Context, cmd contentsvc.ArticleCommand) (*contentmodels.Article, error)
	DeleteArticle(ctx context.Context, articleID id.ArticleID) error
	GetArticle(ctx context.Context, articleID id.ArticleID) (*contentsvc.ArticleDetail, error)
	Articles(ctx context.Context, ids []id.ArticleID) (map[id.ArticleID]*contentmodels.Article, error)
	GetBook(ctx context.Context, bookID id.BookID) (*contentmodels.Book, error)
	Books(ctx context.Context, ids []id.BookID) (map[id.BookID]*contentmodels.Book, error)
	GetAuthor(ctx context.Context, authorID id.AuthorID) (*contentmodels.Author, error)
	AuthorNames(ctx context.Context, ids []id.AuthorID) (map[id.AuthorID]string, error)
	Publish(ctx context.Context, articleID id.ArticleID, result contentmodels.PublishResult) error
	SetStatus(ctx context.Context, articleID id.ArticleID, status contentmodels.ArticleStatus) error
}

type KPIRecorder interface {
	Add(ctx context.Context, records ...kpimodels.Record) error
	ForOrder(ctx context.Context, orderID id.OrderID) ([]kpimodels.Record, error)
}

type EventPublisher interface {
	Emit(ctx context.Context, event eventmodels.Event) error
	List(ctx context.Context, orderID id.OrderID) ([]eventmodels.Event, error)
}

// Perms answers permission questions about workers.
type Perms interface {
	HasAnyPerm(ctx context.Context, userID id.UserID, codenames ...string) (bool, error)
	UsersWithPerm(ctx context.Context, codename string) ([]*upmodels.User, error)
	Users(ctx context.Context, ids []id.UserID) (map[id.UserID]*upmodels.User, error)
}

// MediaStore keeps uploaded page images.
type MediaStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

// TxRunner scopes multi-store writes to one unit of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	DefaultMaxReturned  = 2
	DefaultClaimLockTTL = 5 * time.Second
)

var (
	tracer = otel.Tracer("findiff/internal/workflow/service")

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "findiff_workflow_transitions_total",
		Help: "Order status transitions by action and resulting status",
	}, []string{"action", "to_status"})
	claimLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "findiff_workflow_claim_duration_seconds",
		Help:    "Time to hand out the next order to a worker",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

type Service struct {
	orders  OrderStore
	content ContentService
	kpi     KPIRecorder
	perms   Perms
	locks   ClaimLock
	serials Sequence
	events  EventPublisher
	media   MediaStore
	tx      TxRunner
	logger  *slog.Logger

	maxReturned  int
	claimLockTTL time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithClaimLock(l ClaimLock) Option {
	return func(s *Service) {
		s.locks = l
	}
}

func WithSequence(seq Sequence) Option {
	return func(s *Service) {
		s.serials = seq
	}
}

func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithMedia(m MediaStore) Option {
	return func(s *Service) {
		s.media = m
	}
}

// WithMaxReturned sets how many returns an order survives before it is
// shuffled back into a pool.
func WithMaxReturned(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxReturned = n
		}
	}
}

func WithClaimLockTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.claimLockTTL = d
		}
	}
}

func New(orders OrderStore, content ContentService, kpi KPIRecorder, perms Perms, opts ...Option) *Service {
	s := &Service{
		orders:       orders,
		content:      content,
		kpi:          kpi,
		perms:        perms,
		locks:        claimlock.NewInMemory(),
		serials:      serial.NewInMemory(),
		logger:       slog.Default(),
		maxReturned:  DefaultMaxReturned,
		claimLockTTL: DefaultClaimLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	args := append(attributes,
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	)
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		args = append(args, "actor_id", actor.String())
	}
	s.logger.InfoContext(ctx, event, args...)
}

// startSpan opens a span for a service operation.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("actor_id", requestcontext.UserID(ctx).String()))
	return tracer.Start(ctx, "workflow."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, dErrors.MessageOf(err))
	}
	span.End()
}

// transition is one order status change made by a use case.
type transition struct {
	event  eventmodels.Type
	order  *models.Order
	from   models.OrderStatus
	remark string
}

// commit stores the order and its event in the caller's transaction.
func (s *Service) commit(ctx context.Context, t transition) error {
	if err := s.orders.Update(ctx, t.order); err != nil {
		return storeError(err, "order not found", "failed to update order")
	}
	return s.record(ctx, t)
}

func (s *Service) record(ctx context.Context, t transition) error {
	transitions.WithLabelValues(string(t.event), string(t.order.Status)).Inc()
	trace.SpanFromContext(ctx).AddEvent(string(t.event), trace.WithAttributes(
		attribute.String("order_id", t.order.ID.String()),
		attribute.String("from_status", string(t.from)),
		attribute.String("to_status", string(t.order.Status)),
	))
	s.logAudit(ctx, string(t.event),
		"order_id", t.order.ID.String(),
		"serial_id", t.order.SerialID,
		"from_status", string(t.from),
		"to_status", string(t.order.Status),
	)
	if s.events == nil {
		return nil
	}
	err := s.events.Emit(ctx, eventmodels.Event{
		Type:       t.event,
		OrderID:    t.order.ID,
		ActorID:    requestcontext.UserID(ctx),
		FromStatus: string(t.from),
		ToStatus:   string(t.order.Status),
		Remark:     t.remark,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record workflow event")
	}
	return nil
}

func (s *Service) nextSerial(ctx context.Context, prefix string) (string, error) {
	now := requestcontext.Now(ctx)
	seq, err := s.serials.Next(ctx, prefix, now)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate serial id")
	}
	return models.FormatSerial(prefix, now, seq), nil
}

func (s *Service) order(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "order not found", "failed to load order")
	}
	return o, nil
}

func storeError(err error, notFoundMsg, internalMsg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "order already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func requireUser(ctx context.Context) (id.UserID, error) {
	user := requestcontext.UserID(ctx)
	if user.IsNil() {
		return user, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return user, nil
}
