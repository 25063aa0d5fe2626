//go:build integration

package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	contentmodels "findiff/internal/content/models"
	"findiff/internal/content/store/article"
	"findiff/internal/workflow/models"
	"findiff/internal/workflow/store/order"
	id "findiff/pkg/domain"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/platform/tx"
	"findiff/pkg/testutil/containers"
)

type PostgresOrderSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	orders   *order.PostgresStore
	articles *article.PostgresStore
	runner   *tx.SQLRunner
}

func TestPostgresOrderSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOrderSuite))
}

func (s *PostgresOrderSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.orders = order.NewPostgres(s.postgres.DB)
	s.articles = article.NewPostgres(s.postgres.DB)
	s.runner = tx.NewSQLRunner(s.postgres.DB, 5*time.Second)
}

func (s *PostgresOrderSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_orders", "articles"))
}

func (s *PostgresOrderSuite) newOrder(status models.OrderStatus, age time.Duration) *models.Order {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Add(age)
	a := &contentmodels.Article{
		ID:        id.ArticleID(uuid.New()),
		Status:    contentmodels.ArticleStatusUnaudit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.articles.Create(ctx, a))
	o := &models.Order{
		ID:        id.OrderID(uuid.New()),
		SerialID:  "AUDIT" + uuid.NewString()[:8],
		ArticleID: a.ID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.orders.Create(ctx, o))
	return o
}

func (s *PostgresOrderSuite) TestRoundTripKeepsReviews() {
	ctx := context.Background()
	o := s.newOrder(models.StatusSecondPending, 0)
	o.FirstReview = &models.Review{
		AssigneeID:  id.UserID(uuid.New()),
		Status:      models.ReviewSuccess,
		ContentText: "first",
		WritingMode: contentmodels.WritingModeVertical,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.CreatedAt,
	}
	o.SecondReview = &models.Review{AssigneeID: id.UserID(uuid.New()), Status: models.ReviewUnaudit}
	o.QAReview = &models.QAReview{QAUserID: id.UserID(uuid.New()), BulkID: "bulk", SerialID: "QA1"}
	s.Require().NoError(s.orders.Update(ctx, o))

	got, err := s.orders.FindByID(ctx, o.ID)
	s.Require().NoError(err)
	if diff := cmp.Diff(o, got); diff != "" {
		s.T().Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func (s *PostgresOrderSuite) TestCountByArticle() {
	ctx := context.Background()
	o := s.newOrder(models.StatusQAPending, 0)
	s.newOrder(models.StatusQAPending, time.Minute)

	n, err := s.orders.CountByArticle(ctx, o.ArticleID)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.orders.CountByArticle(ctx, id.ArticleID(uuid.New()))
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresOrderSuite) TestFindOwnedUsesAssigneeColumns() {
	ctx := context.Background()
	alice := id.UserID(uuid.New())
	o := s.newOrder(models.StatusSecondReturned, 0)
	o.FirstReview = &models.Review{AssigneeID: alice, Status: models.ReviewReturned}
	s.Require().NoError(s.orders.Update(ctx, o))

	got, err := s.orders.FindOwned(ctx, alice, models.OwnReturned)
	s.Require().NoError(err)
	s.Equal(o.ID, got.ID)

	_, err = s.orders.FindOwned(ctx, alice, models.OwnPending)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentClaimsNeverShareAnOrder verifies SKIP LOCKED hands each
// concurrent transaction a different order.
func (s *PostgresOrderSuite) TestConcurrentClaimsNeverShareAnOrder() {
	const workers = 8
	for i := range workers {
		s.newOrder(models.StatusFirstUnassigned, time.Duration(i)*time.Minute)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[id.OrderID]int)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := id.UserID(uuid.New())
			err := s.runner.RunInTx(context.Background(), func(ctx context.Context) error {
				o, err := s.orders.ClaimCandidate(ctx, models.StatusFirstUnassigned, id.UserID{})
				if err != nil {
					return err
				}
				if err := o.ClaimFirst(user, time.Now().UTC()); err != nil {
					return err
				}
				mu.Lock()
				claimed[o.ID]++
				mu.Unlock()
				return s.orders.Update(ctx, o)
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Len(claimed, workers)
	for orderID, n := range claimed {
		s.Equal(1, n, "order %s claimed more than once", orderID)
	}
}

func (s *PostgresOrderSuite) TestQABooks() {
	ctx := context.Background()
	book := id.BookID(uuid.New())
	for i, status := range []models.OrderStatus{models.StatusQAUnassigned, models.StatusQAPending, models.StatusQAPending} {
		o := s.newOrder(status, time.Duration(i)*time.Minute)
		o.BookID = book
		s.Require().NoError(s.orders.Update(ctx, o))
	}
	blocked := s.newOrder(models.StatusQAPending, 0)
	blocked.BookID = id.BookID(uuid.New())
	s.Require().NoError(s.orders.Update(ctx, blocked))
	pending := s.newOrder(models.StatusFirstPending, 0)
	pending.BookID = blocked.BookID
	s.Require().NoError(s.orders.Update(ctx, pending))

	stats, err := s.orders.QABooks(ctx)
	s.Require().NoError(err)
	s.Equal([]models.BookQAStat{{BookID: book, Total: 3, Unassigned: 1, Pending: 2}}, stats)
}
