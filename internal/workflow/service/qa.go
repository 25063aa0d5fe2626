package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	contentmodels "findiff/internal/content/models"
	contentsvc "findiff/internal/content/service"
	eventmodels "findiff/internal/events/models"
	kpimodels "findiff/internal/kpi/models"
	"findiff/internal/userprofile/catalog"
	upmodels "findiff/internal/userprofile/models"
	"findiff/internal/workflow/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

const bookScanConcurrency = 8

// BookRow is a book whose orders have all reached QA, seen from one QA user.
type BookRow struct {
	Book            *contentmodels.Book `json:"book"`
	AuthorNames     []string            `json:"book_authors"`
	Total           int                 `json:"total_order_count"`
	UnassignedCount int                 `json:"unassign_order_count"`
	MyPendingCount  int                 `json:"unaudit_bulk_count"`
	MyBulkID        string              `json:"unaudit_bulk_id,omitempty"`
	QAUserID        *id.UserID          `json:"qa_user_id,omitempty"`
	QAUserName      string              `json:"qa_user,omitempty"`
}

// SampleResult is the batch a QA user drew from a book.
type SampleResult struct {
	BulkID   string       `json:"bulk_id"`
	OrderIDs []id.OrderID `json:"order_ids"`
}

type bookScan struct {
	stat      models.BookQAStat
	holder    id.UserID
	myPending int
	myBulk    string
}

// scanBook reports the book's QA holder and user's share of it. Assignment
// moves a whole book, so one user normally holds every pending order; when
// holders differ the most recently updated QA review names the holder.
func scanBook(stat models.BookQAStat, orders []*models.Order, user id.UserID) bookScan {
	scan := bookScan{stat: stat}
	var latest time.Time
	for _, o := range orders {
		if o.Status != models.StatusQAPending || o.QAReview == nil {
			continue
		}
		qaUser := o.QAUserID()
		if scan.holder.IsNil() || o.QAReview.UpdatedAt.After(latest) {
			scan.holder = qaUser
			latest = o.QAReview.UpdatedAt
		}
		if qaUser != user {
			continue
		}
		scan.myPending++
		if scan.myBulk == "" {
			scan.myBulk = o.BulkID()
		}
	}
	return scan
}

// ListBooks lists books ready for or in QA. Supervisors see every book; QA
// users see books with unassigned orders and books they hold.
func (s *Service) ListBooks(ctx context.Context) (rows []*BookRow, err error) {
	ctx, span := startSpan(ctx, "ListBooks")
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.orders.QABooks(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list qa books")
	}
	supervisor, err := s.perms.HasAnyPerm(ctx, user, catalog.PermAssignQAOrder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}

	scans := make([]bookScan, len(stats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bookScanConcurrency)
	for i, stat := range stats {
		g.Go(func() error {
			orders, err := s.orders.ListByBook(gctx, stat.BookID)
			if err != nil {
				return err
			}
			scans[i] = scanBook(stat, orders, user)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load qa orders")
	}

	var (
		visible []bookScan
		bookIDs []id.BookID
		holders []id.UserID
	)
	for _, scan := range scans {
		if !supervisor && scan.stat.Unassigned == 0 && scan.myPending == 0 {
			continue
		}
		visible = append(visible, scan)
		bookIDs = append(bookIDs, scan.stat.BookID)
		if !scan.holder.IsNil() {
			holders = append(holders, scan.holder)
		}
	}
	books, err := s.content.Books(ctx, bookIDs)
	if err != nil {
		return nil, err
	}
	var authorIDs []id.AuthorID
	for _, b := range books {
		authorIDs = append(authorIDs, b.AuthorIDs...)
	}
	authors, err := s.content.AuthorNames(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	users, err := s.perms.Users(ctx, holders)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load qa users")
	}

	rows = make([]*BookRow, 0, len(visible))
	for _, scan := range visible {
		book, ok := books[scan.stat.BookID]
		if !ok {
			continue
		}
		row := &BookRow{
			Book:            book,
			AuthorNames:     make([]string, 0, len(book.AuthorIDs)),
			Total:           scan.stat.Total,
			UnassignedCount: scan.stat.Unassigned,
			MyPendingCount:  scan.myPending,
			MyBulkID:        scan.myBulk,
		}
		for _, authorID := range book.AuthorIDs {
			if name, ok := authors[authorID]; ok {
				row.AuthorNames = append(row.AuthorNames, name)
			}
		}
		if !scan.holder.IsNil() {
			holder := scan.holder
			row.QAUserID = &holder
			if u, ok := users[holder]; ok {
				row.QAUserName = u.DisplayName()
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ApplyQA takes QA of a whole book. The caller must have finished their
// pending QA orders and nobody else may hold the book.
func (s *Service) ApplyQA(ctx context.Context, bookID id.BookID) (claimed []*models.Order, err error) {
	ctx, span := startSpan(ctx, "ApplyQA", attribute.String("book_id", bookID.String()))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		pending, err := s.orders.Count(ctx, models.OrderFilter{
			Statuses: []models.OrderStatus{models.StatusQAPending},
			QAUserID: user,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count qa orders")
		}
		if pending > 0 {
			return dErrors.New(dErrors.CodeConflict, "finish your pending qa orders first")
		}
		orders, err := s.bookOrders(ctx, bookID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Status == models.StatusQAPending && o.QAUserID() != user {
				return dErrors.New(dErrors.CodeConflict, "book is held by another qa user")
			}
		}
		now := requestcontext.Now(ctx)
		for _, o := range orders {
			if o.Status != models.StatusQAUnassigned {
				continue
			}
			serialID, err := s.nextSerial(ctx, models.SerialPrefixQA)
			if err != nil {
				return err
			}
			from := o.Status
			if err := o.ClaimQA(user, serialID, now); err != nil {
				return err
			}
			if err := s.commit(ctx, transition{event: eventmodels.TypeQAClaimed, order: o, from: from}); err != nil {
				return err
			}
			claimed = append(claimed, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// bookOrders loads every order of a book and checks they have all reached QA.
func (s *Service) bookOrders(ctx context.Context, bookID id.BookID) ([]*models.Order, error) {
	orders, err := s.orders.ListByBook(ctx, bookID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load book orders")
	}
	if len(orders) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "book has no orders")
	}
	for _, o := range orders {
		if !o.Status.In(models.QAStatuses...) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "book is not ready for qa")
		}
	}
	return orders, nil
}

// Sample marks ceil(ratio% of the caller's pending orders on the book) as one
// batch, oldest first.
func (s *Service) Sample(ctx context.Context, bookID id.BookID, ratio int) (result *SampleResult, err error) {
	ctx, span := startSpan(ctx, "Sample",
		attribute.String("book_id", bookID.String()), attribute.Int("ratio", ratio))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if ratio < 0 || ratio > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "qa_ratio must be between 0 and 100")
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		orders, err := s.orders.ListByBook(ctx, bookID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load book orders")
		}
		var mine []*models.Order
		for _, o := range orders {
			if o.BulkID() != "" {
				return dErrors.New(dErrors.CodeInvalidState, "book has already been sampled")
			}
			if o.Status == models.StatusQAPending && o.QAUserID() == user {
				mine = append(mine, o)
			}
		}
		if len(mine) == 0 {
			return dErrors.New(dErrors.CodeForbidden, "you hold no qa orders on this book")
		}
		count := (ratio*len(mine) + 99) / 100
		result = &SampleResult{OrderIDs: make([]id.OrderID, 0, count)}
		if count == 0 {
			return nil
		}
		result.BulkID = uuid.NewString()
		now := requestcontext.Now(ctx)
		for _, o := range mine[:count] {
			if err := o.MarkSample(user, result.BulkID, now); err != nil {
				return err
			}
			if err := s.commit(ctx, transition{event: eventmodels.TypeQASampled, order: o, from: o.Status}); err != nil {
				return err
			}
			result.OrderIDs = append(result.OrderIDs, o.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QAOrders lists the caller's pending QA orders, optionally one sample batch,
// with the second pass result as the working copy.
func (s *Service) QAOrders(ctx context.Context, bulkID string, page paging.Page) (paging.Result[*OrderDetail], error) {
	user, err := requireUser(ctx)
	if err != nil {
		return paging.Result[*OrderDetail]{}, err
	}
	orders, total, err := s.orders.List(ctx, models.OrderFilter{
		Statuses: []models.OrderStatus{models.StatusQAPending},
		QAUserID: user,
		BulkID:   bulkID,
	}, page)
	if err != nil {
		return paging.Result[*OrderDetail]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list qa orders")
	}
	articleIDs := make([]id.ArticleID, 0, len(orders))
	for _, o := range orders {
		articleIDs = append(articleIDs, o.ArticleID)
	}
	articles, err := s.content.Articles(ctx, articleIDs)
	if err != nil {
		return paging.Result[*OrderDetail]{}, err
	}
	out := make([]*OrderDetail, 0, len(orders))
	for _, o := range orders {
		d := &OrderDetail{Order: o, Review: o.SecondReview.Clone()}
		if a, ok := articles[o.ArticleID]; ok {
			d.Article = &contentsvc.ArticleDetail{Article: a}
		}
		out = append(out, d)
	}
	return paging.NewResult(out, total, page), nil
}

// SubmitQA accepts every order of a book the caller holds, publishes the
// second pass results and credits both proofreaders.
func (s *Service) SubmitQA(ctx context.Context, bookID id.BookID) (passed []id.OrderID, err error) {
	ctx, span := startSpan(ctx, "SubmitQA", attribute.String("book_id", bookID.String()))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		orders, err := s.orders.ListByBook(ctx, bookID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load book orders")
		}
		if len(orders) == 0 {
			return dErrors.New(dErrors.CodeNotFound, "book has no orders")
		}
		results, err := s.qaPublishResults(ctx, orders, user)
		if err != nil {
			return err
		}
		// Nothing below may fail on input; the memory runner cannot undo
		// orders already written.
		now := requestcontext.Now(ctx)
		var credits []kpimodels.Record
		for i, o := range orders {
			from := o.Status
			if err := o.PassQA(user, now); err != nil {
				return err
			}
			if err := s.commit(ctx, transition{event: eventmodels.TypeQAPassed, order: o, from: from}); err != nil {
				return err
			}
			if err := s.content.Publish(ctx, o.ArticleID, results[i]); err != nil {
				return err
			}
			for _, r := range []*models.Review{o.FirstReview, o.SecondReview} {
				if r == nil || r.AssigneeID.IsNil() {
					continue
				}
				credits = append(credits, kpimodels.Record{
					UserID:      r.AssigneeID,
					Type:        kpimodels.TypeForWritingMode(r.WritingMode),
					TriggerStep: kpimodels.TriggerQA,
					OrderID:     o.ID,
				})
			}
			passed = append(passed, o.ID)
		}
		return s.kpi.Add(ctx, credits...)
	})
	if err != nil {
		return nil, err
	}
	return passed, nil
}

// qaPublishResults checks that every order of a book can pass QA and returns
// what each article will be published with.
func (s *Service) qaPublishResults(ctx context.Context, orders []*models.Order, user id.UserID) ([]contentmodels.PublishResult, error) {
	articleIDs := make([]id.ArticleID, 0, len(orders))
	for _, o := range orders {
		if o.Status != models.StatusQAPending {
			return nil, dErrors.New(dErrors.CodeInvalidState, "every order of the book must be in qa")
		}
		if o.QAUserID() != user {
			return nil, dErrors.New(dErrors.CodeForbidden, "book is held by another qa user")
		}
		if o.SecondReview == nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "order "+o.SerialID+" has no second review")
		}
		articleIDs = append(articleIDs, o.ArticleID)
	}
	articles, err := s.content.Articles(ctx, articleIDs)
	if err != nil {
		return nil, err
	}
	results := make([]contentmodels.PublishResult, len(orders))
	for i, o := range orders {
		if _, ok := articles[o.ArticleID]; !ok {
			return nil, dErrors.New(dErrors.CodeNotFound, "article of order "+o.SerialID+" not found")
		}
		results[i] = o.SecondReview.Result().PublishResult()
		if !results[i].WritingMode.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "order "+o.SerialID+" has no valid writing mode")
		}
	}
	return results, nil
}

// ReturnQA sends orders back to their second reviewers. Past the returned
// limit an order is shuffled into the second pass pool and its second
// reviewer is penalized.
func (s *Service) ReturnQA(ctx context.Context, orderIDs []id.OrderID, remark string) (returned []*models.Order, err error) {
	ctx, span := startSpan(ctx, "ReturnQA", attribute.Int("orders", len(orderIDs)))
	defer func() { endSpan(span, err) }()

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "returned_orders is required")
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		ids := uniqueOrderIDs(orderIDs)
		orders, err := s.orders.FindByIDs(ctx, ids)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load orders")
		}
		if len(orders) != len(ids) {
			return dErrors.New(dErrors.CodeNotFound, "order not found")
		}
		for _, o := range orders {
			if o.Status != models.StatusQAPending {
				return dErrors.New(dErrors.CodeInvalidState, "only orders in qa can be returned")
			}
			if o.QAUserID() != user {
				return dErrors.New(dErrors.CodeForbidden, "order is not assigned to you")
			}
		}
		now := requestcontext.Now(ctx)
		for _, o := range orders {
			from := o.Status
			shuffle, err := o.ReturnToSecond(user, remark, s.maxReturned, now)
			if err != nil {
				return err
			}
			t := transition{event: eventmodels.TypeQAReturned, order: o, from: from, remark: remark}
			if err := s.commitReturn(ctx, t, shuffle); err != nil {
				return err
			}
			returned = append(returned, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

func uniqueOrderIDs(ids []id.OrderID) []id.OrderID {
	seen := make(map[id.OrderID]struct{}, len(ids))
	out := make([]id.OrderID, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// AssignQA hands the QA of whole books to target on a supervisor's behalf.
// Every order of every book must have reached QA.
func (s *Service) AssignQA(ctx context.Context, bookIDs []id.BookID, target id.UserID) (assigned []*models.Order, err error) {
	ctx, span := startSpan(ctx, "AssignQA",
		attribute.Int("books", len(bookIDs)), attribute.String("target_id", target.String()))
	defer func() { endSpan(span, err) }()

	operator, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(bookIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "books is required")
	}
	if target.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	ok, err := s.perms.HasAnyPerm(ctx, target, catalog.PermApplyQAOrder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "user cannot take qa orders")
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		var all []*models.Order
		for _, bookID := range bookIDs {
			orders, err := s.bookOrders(ctx, bookID)
			if err != nil {
				return err
			}
			all = append(all, orders...)
		}
		now := requestcontext.Now(ctx)
		for _, o := range all {
			var serialID string
			if o.QAReview == nil {
				next, err := s.nextSerial(ctx, models.SerialPrefixQA)
				if err != nil {
					return err
				}
				serialID = next
			}
			from := o.Status
			if err := o.AssignQA(target, operator, serialID, now); err != nil {
				return err
			}
			if err := s.commit(ctx, transition{event: eventmodels.TypeQAAssigned, order: o, from: from}); err != nil {
				return err
			}
			assigned = append(assigned, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "qa_books_assigned", "target_id", target.String(), "orders", len(assigned))
	return assigned, nil
}

// Staff lists the users who may take QA orders.
func (s *Service) Staff(ctx context.Context) ([]*upmodels.User, error) {
	users, err := s.perms.UsersWithPerm(ctx, catalog.PermApplyQAOrder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list qa staff")
	}
	return users, nil
}
