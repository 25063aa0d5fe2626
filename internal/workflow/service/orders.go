package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	contentmodels "findiff/internal/content/models"
	contentsvc "findiff/internal/content/service"
	eventmodels "findiff/internal/events/models"
	kpimodels "findiff/internal/kpi/models"
	"findiff/internal/workflow/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/requestcontext"
)

const claimRetryInterval = 25 * time.Millisecond

// OrderDetail is an order with the review a worker edits and the article it
// belongs to.
type OrderDetail struct {
	*models.Order
	Review  *models.Review            `json:"review,omitempty"`
	Article *contentsvc.ArticleDetail `json:"article,omitempty"`
}

// History is everything recorded against one order.
type History struct {
	Events []eventmodels.Event `json:"events"`
	KPI    []kpimodels.Record  `json:"kpi"`
}

// InitCommand creates an article from an uploaded page image and queues it
// for first-pass proofreading.
type InitCommand struct {
	BookID            id.BookID
	AuthorID          id.AuthorID
	Snum              string
	Title             string
	BookPage          int
	ArticlePage       int
	WritingModeOrigin contentmodels.WritingMode
	WritingMode       contentmodels.WritingMode
	ContentText       string
	ImageName         string
	Image             io.Reader
}

// Apply hands the caller their next order. Explicitly requested own orders
// come first, then own returned orders, then own pending orders, then the
// oldest unassigned second pass the caller did not first-review, then the
// oldest unassigned first pass.
func (s *Service) Apply(ctx context.Context, requested models.ReviewStatus) (order *models.Order, err error) {
	ctx, span := startSpan(ctx, "Apply", attribute.String("requested", string(requested)))
	defer func() { endSpan(span, err) }()
	start := time.Now()
	defer func() {
		claimLatency.WithLabelValues(string(dErrors.CodeOf(err))).Observe(time.Since(start).Seconds())
	}()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if requested != "" && !requested.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid audit status")
	}
	release, err := s.lockWorker(ctx, user)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.runInTx(ctx, func(ctx context.Context) error {
		o, err := s.nextOrder(ctx, user, requested)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order_id", order.ID.String()),
		attribute.String("status", string(order.Status)),
	)
	return order, nil
}

func (s *Service) nextOrder(ctx context.Context, user id.UserID, requested models.ReviewStatus) (*models.Order, error) {
	tiers := [][]models.Assignment{
		models.RequestedAssignments(requested),
		models.OwnReturned,
		models.OwnPending,
	}
	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		o, err := s.orders.FindOwned(ctx, user, tier)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, storeError(err, "order not found", "failed to look up orders")
		}
	}
	for _, status := range []models.OrderStatus{models.StatusSecondUnassigned, models.StatusFirstUnassigned} {
		o, err := s.claim(ctx, user, status)
		if err != nil || o != nil {
			return o, err
		}
	}
	return nil, dErrors.New(dErrors.CodeNoOrdersAvailable, "no orders available")
}

// claim takes the oldest unassigned order in status, or returns nil when the
// pool is empty.
func (s *Service) claim(ctx context.Context, user id.UserID, status models.OrderStatus) (*models.Order, error) {
	var exclude id.UserID
	if status == models.StatusSecondUnassigned {
		exclude = user
	}
	o, err := s.orders.ClaimCandidate(ctx, status, exclude)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "order not found", "failed to claim order")
	}

	now := requestcontext.Now(ctx)
	from := o.Status
	if status == models.StatusSecondUnassigned {
		err = o.ClaimSecond(user, now)
	} else {
		err = o.ClaimFirst(user, now)
	}
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, transition{event: eventmodels.TypeOrderClaimed, order: o, from: from}); err != nil {
		return nil, err
	}
	if from == models.StatusFirstUnassigned {
		if err := s.content.SetStatus(ctx, o.ArticleID, contentmodels.ArticleStatusAuditing); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// lockWorker holds the caller's apply lease, retrying while another apply by
// the same worker runs. It gives up after the lease TTL.
func (s *Service) lockWorker(ctx context.Context, user id.UserID) (func(), error) {
	key := "apply:" + user.String()
	deadline := time.Now().Add(s.claimLockTTL)
	for {
		token, err := s.locks.Acquire(ctx, key, s.claimLockTTL)
		if err == nil {
			return func() {
				if err := s.locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
					s.logger.WarnContext(ctx, "failed to release claim lock",
						"request_id", requestcontext.RequestID(ctx), "user_id", user.String(), "error", err)
				}
			}, nil
		}
		if !errors.Is(err, sentinel.ErrLocked) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock worker")
		}
		if time.Now().After(deadline) {
			return nil, dErrors.New(dErrors.CodeConflict, "another apply is in progress")
		}
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "apply cancelled")
		case <-time.After(claimRetryInterval):
		}
	}
}

// Submit records the caller's proofreading result and advances the order.
func (s *Service) Submit(ctx context.Context, orderID id.OrderID, res models.ReviewResult) (order *models.Order, err error) {
	ctx, span := startSpan(ctx, "Submit", attribute.String("order_id", orderID.String()))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	if !res.AuthorID.IsNil() {
		if _, err := s.content.GetAuthor(ctx, res.AuthorID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "unknown author")
			}
			return nil, err
		}
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		o, err := s.order(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.Submit(user, res, requestcontext.Now(ctx)); err != nil {
			return err
		}
		order = o
		return s.commit(ctx, transition{event: eventmodels.TypeOrderSubmitted, order: o, from: from})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Suspend parks the caller's current pass with a draft.
func (s *Service) Suspend(ctx context.Context, orderID id.OrderID, draft models.ReviewResult) (order *models.Order, err error) {
	ctx, span := startSpan(ctx, "Suspend", attribute.String("order_id", orderID.String()))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		o, err := s.order(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.Suspend(user, draft, requestcontext.Now(ctx)); err != nil {
			return err
		}
		order = o
		return s.commit(ctx, transition{event: eventmodels.TypeOrderSuspended, order: o, from: from})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Return sends a second-pass order back to its first reviewer. Past the
// returned limit the order is shuffled into the first-pass pool and the first
// reviewer is penalized.
func (s *Service) Return(ctx context.Context, orderID id.OrderID, remark string) (order *models.Order, err error) {
	ctx, span := startSpan(ctx, "Return", attribute.String("order_id", orderID.String()))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		o, err := s.order(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		shuffle, err := o.ReturnToFirst(user, remark, s.maxReturned, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		order = o
		return s.commitReturn(ctx, transition{event: eventmodels.TypeOrderReturned, order: o, from: from, remark: remark}, shuffle)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// commitReturn stores a returned order. A shuffle is recorded as its own
// event type and costs the penalized reviewer a KPI record.
func (s *Service) commitReturn(ctx context.Context, t transition, shuffle *models.Shuffle) error {
	if shuffle != nil {
		t.event = eventmodels.TypeOrderShuffled
	}
	if err := s.commit(ctx, t); err != nil {
		return err
	}
	if shuffle == nil {
		return nil
	}
	return s.kpi.Add(ctx, kpimodels.Record{
		UserID:      shuffle.Penalized,
		Type:        kpimodels.TypeReturnedShuffle,
		TriggerStep: kpimodels.TriggerStep(shuffle.Trigger),
		OrderID:     t.order.ID,
	})
}

// InitOrder stores the page image, creates its article and queues an order
// for first-pass proofreading.
func (s *Service) InitOrder(ctx context.Context, cmd InitCommand) (order *models.Order, err error) {
	ctx, span := startSpan(ctx, "InitOrder", attribute.String("book_id", cmd.BookID.String()))
	defer func() { endSpan(span, err) }()

	if cmd.BookID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "book_id is required")
	}
	if cmd.Image == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "content image is required")
	}
	if s.media == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "media storage is not configured")
	}
	if _, err := s.content.GetBook(ctx, cmd.BookID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown book")
		}
		return nil, err
	}
	image, err := s.media.Save(ctx, cmd.ImageName, cmd.Image)
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		article, err := s.content.CreateArticle(ctx, contentsvc.ArticleCommand{
			BookID:            cmd.BookID,
			AuthorID:          cmd.AuthorID,
			Snum:              cmd.Snum,
			Title:             cmd.Title,
			BookPage:          cmd.BookPage,
			ArticlePage:       cmd.ArticlePage,
			Status:            contentmodels.ArticleStatusUnaudit,
			WritingModeOrigin: cmd.WritingModeOrigin,
			WritingMode:       cmd.WritingMode,
			ContentImage:      image,
			ContentText:       cmd.ContentText,
		})
		if err != nil {
			return err
		}
		serialID, err := s.nextSerial(ctx, models.SerialPrefixOrder)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		o := &models.Order{
			ID:         id.OrderID(uuid.New()),
			SerialID:   serialID,
			ArticleID:  article.ID,
			BookID:     cmd.BookID,
			Status:     models.StatusFirstUnassigned,
			OperatorID: requestcontext.UserID(ctx),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return storeError(err, "order not found", "failed to create order")
		}
		order = o
		return s.record(ctx, transition{event: eventmodels.TypeOrderCreated, order: o})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Get returns an order with its working copy. Proofreading passes start from
// the previous pass when empty; QA works on the second pass result.
func (s *Service) Get(ctx context.Context, orderID id.OrderID) (*OrderDetail, error) {
	o, err := s.order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	article, err := s.content.GetArticle(ctx, o.ArticleID)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, err
	}
	review := o.WorkingCopy()
	if review == nil {
		review = o.SecondReview.Clone()
	}
	return &OrderDetail{Order: o, Review: review, Article: article}, nil
}

func (s *Service) List(ctx context.Context, filter models.OrderFilter, page paging.Page) (paging.Result[*models.Order], error) {
	orders, total, err := s.orders.List(ctx, filter, page)
	if err != nil {
		return paging.Result[*models.Order]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list orders")
	}
	return paging.NewResult(orders, total, page), nil
}

// Delete removes an order nobody has claimed. The article stays in the
// catalogue.
func (s *Service) Delete(ctx context.Context, orderID id.OrderID) (err error) {
	ctx, span := startSpan(ctx, "Delete", attribute.String("order_id", orderID.String()))
	defer func() { endSpan(span, err) }()

	return s.runInTx(ctx, func(ctx context.Context) error {
		o, err := s.order(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.StatusFirstUnassigned {
			return dErrors.New(dErrors.CodeInvalidState, "only unassigned orders can be deleted")
		}
		if err := s.orders.Delete(ctx, orderID); err != nil {
			return storeError(err, "order not found", "failed to delete order")
		}
		from := o.Status
		o.Status = ""
		return s.record(ctx, transition{event: eventmodels.TypeOrderDeleted, order: o, from: from})
	})
}

// History lists the events and KPI records an order produced.
func (s *Service) History(ctx context.Context, orderID id.OrderID) (*History, error) {
	if _, err := s.order(ctx, orderID); err != nil {
		return nil, err
	}
	h := &History{Events: []eventmodels.Event{}, KPI: []kpimodels.Record{}}
	if s.events != nil {
		events, err := s.events.List(ctx, orderID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load order events")
		}
		h.Events = append(h.Events, events...)
	}
	records, err := s.kpi.ForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	h.KPI = append(h.KPI, records...)
	return h, nil
}
