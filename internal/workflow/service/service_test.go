package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ClaimLock,Sequence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	contentmodels "findiff/internal/content/models"
	contentsvc "findiff/internal/content/service"
	"findiff/internal/content/store/article"
	"findiff/internal/content/store/author"
	"findiff/internal/content/store/book"
	eventmodels "findiff/internal/events/models"
	"findiff/internal/events/publisher"
	eventstore "findiff/internal/events/store"
	kpimodels "findiff/internal/kpi/models"
	kpisvc "findiff/internal/kpi/service"
	kpistore "findiff/internal/kpi/store"
	"findiff/internal/media"
	"findiff/internal/userprofile/catalog"
	upmodels "findiff/internal/userprofile/models"
	"findiff/internal/workflow/models"
	"findiff/internal/workflow/service/mocks"
	"findiff/internal/workflow/store/order"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/paging"
	"findiff/pkg/platform/sentinel"
	"findiff/pkg/platform/tx"
	"findiff/pkg/requestcontext"
)

// grants is a permission directory keyed by user.
type grants struct {
	perms map[id.UserID][]string
	users map[id.UserID]*upmodels.User
}

func newGrants() *grants {
	return &grants{perms: map[id.UserID][]string{}, users: map[id.UserID]*upmodels.User{}}
}

func (g *grants) add(username string, perms ...string) id.UserID {
	userID := id.UserID(uuid.New())
	g.users[userID] = &upmodels.User{ID: userID, Username: username, IsActive: true}
	g.perms[userID] = perms
	return userID
}

func (g *grants) HasAnyPerm(_ context.Context, userID id.UserID, codenames ...string) (bool, error) {
	for _, have := range g.perms[userID] {
		if slices.Contains(codenames, have) {
			return true, nil
		}
	}
	return false, nil
}

func (g *grants) UsersWithPerm(_ context.Context, codename string) ([]*upmodels.User, error) {
	var out []*upmodels.User
	for userID, perms := range g.perms {
		if slices.Contains(perms, codename) {
			out = append(out, g.users[userID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (g *grants) Users(_ context.Context, ids []id.UserID) (map[id.UserID]*upmodels.User, error) {
	out := make(map[id.UserID]*upmodels.User)
	for _, userID := range ids {
		if u, ok := g.users[userID]; ok {
			out[userID] = u
		}
	}
	return out, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pngPage(n int) []byte {
	return append(append([]byte{}, pngHeader...), fmt.Sprintf("page-%d", n)...)
}

func result(text string, mode contentmodels.WritingMode) models.ReviewResult {
	return models.ReviewResult{ContentText: text, ArticleTitle: "Preface", ArticlePage: 1, WritingMode: mode}
}

type WorkflowSuite struct {
	suite.Suite
	service  *Service
	orders   *order.InMemoryOrderStore
	articles *article.InMemoryArticleStore
	content  *contentsvc.Service
	kpi      *kpisvc.Service
	grants   *grants
	logger   *slog.Logger

	first, second, third id.UserID
	qa, qa2, lead        id.UserID

	author *contentmodels.Author
	book   *contentmodels.Book
	pages  int
	now    time.Time
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s.pages = 0

	s.grants = newGrants()
	s.first = s.grants.add("first", catalog.PermApplyAuditOrder)
	s.second = s.grants.add("second", catalog.PermApplyAuditOrder)
	s.third = s.grants.add("third", catalog.PermApplyAuditOrder)
	s.qa = s.grants.add("qa", catalog.PermApplyQAOrder)
	s.qa2 = s.grants.add("qa2", catalog.PermApplyQAOrder)
	s.lead = s.grants.add("lead", catalog.PermAssignQAOrder)

	runner := tx.NewMemoryRunner()
	s.orders = order.New()
	s.articles = article.New()
	s.content = contentsvc.New(author.New(), book.New(), s.articles,
		contentsvc.WithLogger(s.logger),
		contentsvc.WithTxRunner(runner),
		contentsvc.WithArticleReferences(s.orders),
	)
	s.kpi = kpisvc.New(kpistore.New(), s.grants, kpisvc.WithLogger(s.logger))
	pageStore, err := media.New(s.T().TempDir(), 1<<20, media.WithLogger(s.logger))
	s.Require().NoError(err)

	s.service = New(s.orders, s.content, s.kpi, s.grants,
		WithLogger(s.logger),
		WithTxRunner(runner),
		WithEvents(publisher.NewPublisher(eventstore.NewInMemory())),
		WithMedia(pageStore),
	)

	s.author, err = s.content.CreateAuthor(s.ctx(s.lead), contentsvc.AuthorCommand{Name: "Sima Qian"})
	s.Require().NoError(err)
	s.book = s.newBook("Shiji")
}

// ctx acts as user one second after the previous call so creation order is
// strict.
func (s *WorkflowSuite) ctx(user id.UserID) context.Context {
	s.now = s.now.Add(time.Second)
	ctx := requestcontext.WithUserID(context.Background(), user)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *WorkflowSuite) newBook(name string) *contentmodels.Book {
	b, err := s.content.CreateBook(s.ctx(s.lead), contentsvc.BookCommand{
		Name: name, Pages: 130, AuthorIDs: []id.AuthorID{s.author.ID},
	})
	s.Require().NoError(err)
	return b
}

func (s *WorkflowSuite) initOrder(bookID id.BookID) *models.Order {
	s.pages++
	o, err := s.service.InitOrder(s.ctx(s.lead), InitCommand{
		BookID:      bookID,
		AuthorID:    s.author.ID,
		BookPage:    s.pages,
		ImageName:   "page.png",
		Image:       bytes.NewReader(pngPage(s.pages)),
		WritingMode: contentmodels.WritingModeVertical,
	})
	s.Require().NoError(err)
	return o
}

func (s *WorkflowSuite) apply(user id.UserID) *models.Order {
	o, err := s.service.Apply(s.ctx(user), "")
	s.Require().NoError(err)
	return o
}

func (s *WorkflowSuite) load(orderID id.OrderID) *models.Order {
	o, err := s.orders.FindByID(context.Background(), orderID)
	s.Require().NoError(err)
	return o
}

// proofread walks an unclaimed order through both passes into the QA pool.
func (s *WorkflowSuite) proofread(o *models.Order, mode contentmodels.WritingMode) {
	s.Require().Equal(o.ID, s.apply(s.first).ID)
	_, err := s.service.Submit(s.ctx(s.first), o.ID, result("first pass text", mode))
	s.Require().NoError(err)
	s.Require().Equal(o.ID, s.apply(s.second).ID)
	_, err = s.service.Submit(s.ctx(s.second), o.ID, result("final text "+o.SerialID, mode))
	s.Require().NoError(err)
	s.Require().Equal(models.StatusQAUnassigned, s.load(o.ID).Status)
}

func (s *WorkflowSuite) eventTypes(orderID id.OrderID) []eventmodels.Type {
	h, err := s.service.History(s.ctx(s.lead), orderID)
	s.Require().NoError(err)
	types := make([]eventmodels.Type, 0, len(h.Events))
	for _, e := range h.Events {
		types = append(types, e.Type)
	}
	return types
}

func stripRecords(records []kpimodels.Record) []kpimodels.Record {
	out := make([]kpimodels.Record, 0, len(records))
	for _, r := range records {
		r.ID = id.KPIID{}
		r.CreatedAt = time.Time{}
		out = append(out, r)
	}
	return out
}

func (s *WorkflowSuite) TestInitOrder() {
	s.Run("queues a first pass order with a daily serial", func() {
		o := s.initOrder(s.book.ID)
		s.Equal(models.StatusFirstUnassigned, o.Status)
		s.Equal("AUDIT20240304000001", o.SerialID)
		s.Equal("AUDIT20240304000002", s.initOrder(s.book.ID).SerialID)

		a, err := s.content.GetArticle(s.ctx(s.lead), o.ArticleID)
		s.Require().NoError(err)
		s.Equal(contentmodels.ArticleStatusUnaudit, a.Status)
		s.True(strings.HasSuffix(a.ContentImage, ".png"))
		s.Equal(s.book.ID, a.BookID)
	})

	s.Run("rejects unknown books and missing or fake images", func() {
		_, err := s.service.InitOrder(s.ctx(s.lead), InitCommand{
			BookID: id.BookID(uuid.New()), ImageName: "p.png", Image: bytes.NewReader(pngPage(99)),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.InitOrder(s.ctx(s.lead), InitCommand{BookID: s.book.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.InitOrder(s.ctx(s.lead), InitCommand{
			BookID: s.book.ID, ImageName: "p.png", Image: strings.NewReader("not an image at all"),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *WorkflowSuite) TestApply() {
	_, err := s.service.Apply(s.ctx(s.first), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNoOrdersAvailable))

	_, err = s.service.Apply(context.Background(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	o1 := s.initOrder(s.book.ID)
	o2 := s.initOrder(s.book.ID)

	claimed := s.apply(s.first)
	s.Equal(o1.ID, claimed.ID, "oldest unassigned order first")
	s.Equal(models.StatusFirstPending, claimed.Status)
	s.Equal(s.first, claimed.FirstUserID())
	a, err := s.content.GetArticle(s.ctx(s.lead), o1.ArticleID)
	s.Require().NoError(err)
	s.Equal(contentmodels.ArticleStatusAuditing, a.Status)

	s.Equal(o1.ID, s.apply(s.first).ID, "own pending order is handed back")

	_, err = s.service.Submit(s.ctx(s.first), o1.ID, result("draft", contentmodels.WritingModeVertical))
	s.Require().NoError(err)
	s.Equal(models.StatusSecondUnassigned, s.load(o1.ID).Status)

	claimed = s.apply(s.first)
	s.Equal(o2.ID, claimed.ID, "first reviewer never gets the second pass of their own order")

	claimed = s.apply(s.second)
	s.Equal(o1.ID, claimed.ID, "second pass pool is served before the first pass pool")
	s.Equal(models.StatusSecondPending, claimed.Status)
	s.Equal(s.second, claimed.SecondUserID())
}

func (s *WorkflowSuite) TestApplyRequestedStatus() {
	o1 := s.initOrder(s.book.ID)
	o2 := s.initOrder(s.book.ID)

	s.Equal(o1.ID, s.apply(s.first).ID)
	draft := models.ReviewResult{ContentText: "half done"}
	suspended, err := s.service.Suspend(s.ctx(s.first), o1.ID, draft)
	s.Require().NoError(err)
	s.Equal(models.StatusFirstSuspended, suspended.Status)
	s.Equal(models.ReviewSuspend, suspended.FirstReview.Status)

	s.Equal(o2.ID, s.apply(s.first).ID, "suspended orders are only handed out on request")

	o, err := s.service.Apply(s.ctx(s.first), models.ReviewSuspend)
	s.Require().NoError(err)
	s.Equal(o1.ID, o.ID)
	s.Equal("half done", o.FirstReview.ContentText)

	_, err = s.service.Apply(s.ctx(s.first), models.ReviewStatus("bogus"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkflowSuite) TestSubmit() {
	o := s.initOrder(s.book.ID)
	s.apply(s.first)

	_, err := s.service.Submit(s.ctx(s.second), o.ID, result("text", contentmodels.WritingModeVertical))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Submit(s.ctx(s.first), o.ID, models.ReviewResult{WritingMode: contentmodels.WritingModeVertical})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	res := result("text", contentmodels.WritingModeVertical)
	res.AuthorID = id.AuthorID(uuid.New())
	_, err = s.service.Submit(s.ctx(s.first), o.ID, res)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Submit(s.ctx(s.first), id.OrderID(uuid.New()), result("text", contentmodels.WritingModeVertical))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	res.AuthorID = s.author.ID
	submitted, err := s.service.Submit(s.ctx(s.first), o.ID, res)
	s.Require().NoError(err)
	s.Equal(models.StatusSecondUnassigned, submitted.Status)
	s.Equal(models.ReviewSuccess, submitted.FirstReview.Status)
	s.Equal(s.author.ID, submitted.FirstReview.ArticleAuthorID)
}

func (s *WorkflowSuite) TestGetPrefillsFromPreviousPass() {
	o := s.initOrder(s.book.ID)
	s.apply(s.first)

	detail, err := s.service.Get(s.ctx(s.first), o.ID)
	s.Require().NoError(err)
	s.Empty(detail.Review.ContentText)
	s.Require().NotNil(detail.Article)
	s.Equal(o.ArticleID, detail.Article.ID)
	s.Equal("Sima Qian", detail.Article.AuthorName)

	_, err = s.service.Submit(s.ctx(s.first), o.ID, result("first pass text", contentmodels.WritingModeHorizontal))
	s.Require().NoError(err)
	s.apply(s.second)

	detail, err = s.service.Get(s.ctx(s.second), o.ID)
	s.Require().NoError(err)
	s.Equal("first pass text", detail.Review.ContentText)
	s.Equal(contentmodels.WritingModeHorizontal, detail.Review.WritingMode)
	s.Equal(s.second, detail.Review.AssigneeID)
	s.Empty(s.load(o.ID).SecondReview.ContentText, "prefill is not stored")

	_, err = s.service.Get(s.ctx(s.second), id.OrderID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WorkflowSuite) TestReturnAndShuffle() {
	o := s.initOrder(s.book.ID)
	s.apply(s.first)
	_, err := s.service.Submit(s.ctx(s.first), o.ID, result("first pass text", contentmodels.WritingModeVertical))
	s.Require().NoError(err)
	s.apply(s.second)

	_, err = s.service.Return(s.ctx(s.first), o.ID, "not yours")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	for i := 1; i <= DefaultMaxReturned; i++ {
		returned, err := s.service.Return(s.ctx(s.second), o.ID, "fix punctuation")
		s.Require().NoError(err)
		s.Equal(models.StatusSecondReturned, returned.Status)
		s.Equal(i, returned.ReturnedCount)
		s.Equal("fix punctuation", returned.ReturnedRemark)

		s.Equal(o.ID, s.apply(s.first).ID, "returned orders come back to the first reviewer")
		resubmitted, err := s.service.Submit(s.ctx(s.first), o.ID, result("reworked", contentmodels.WritingModeVertical))
		s.Require().NoError(err)
		s.Equal(models.StatusSecondPending, resubmitted.Status, "rework goes straight back to the second reviewer")
		s.Equal("reworked", resubmitted.SecondReview.ContentText)
	}

	shuffled, err := s.service.Return(s.ctx(s.second), o.ID, "still wrong")
	s.Require().NoError(err)
	s.Equal(models.StatusFirstUnassigned, shuffled.Status)
	s.Zero(shuffled.ReturnedCount)
	s.True(shuffled.FirstUserID().IsNil())

	h, err := s.service.History(s.ctx(s.lead), o.ID)
	s.Require().NoError(err)
	s.Equal([]kpimodels.Record{{
		UserID:      s.first,
		Type:        kpimodels.TypeReturnedShuffle,
		Count:       1,
		TriggerStep: kpimodels.TriggerFirstAudit,
		OrderID:     o.ID,
	}}, stripRecords(h.KPI))
	s.Require().NotEmpty(h.Events)
	last := h.Events[len(h.Events)-1]
	s.Equal(eventmodels.TypeOrderShuffled, last.Type)
	s.Equal(string(models.StatusSecondPending), last.FromStatus)
	s.Equal(string(models.StatusFirstUnassigned), last.ToStatus)
	s.Equal("still wrong", last.Remark)

	s.Equal(o.ID, s.apply(s.third).ID, "shuffled orders rejoin the first pass pool")
}

func (s *WorkflowSuite) TestDelete() {
	o1 := s.initOrder(s.book.ID)
	o2 := s.initOrder(s.book.ID)
	s.apply(s.first)

	s.True(dErrors.HasCode(s.service.Delete(s.ctx(s.lead), o1.ID), dErrors.CodeInvalidState))
	s.Require().NoError(s.service.Delete(s.ctx(s.lead), o2.ID))

	_, err := s.service.Get(s.ctx(s.lead), o2.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.History(s.ctx(s.lead), o2.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.content.GetArticle(s.ctx(s.lead), o2.ArticleID)
	s.NoError(err, "the article stays in the catalogue")
}

func (s *WorkflowSuite) TestList() {
	o1 := s.initOrder(s.book.ID)
	s.initOrder(s.book.ID)
	s.apply(s.first)

	res, err := s.service.List(s.ctx(s.lead), models.OrderFilter{AssigneeID: s.first}, paging.New(1, 10))
	s.Require().NoError(err)
	s.Equal(1, res.Total)
	s.Equal(o1.ID, res.Items[0].ID)

	res, err = s.service.List(s.ctx(s.lead), models.OrderFilter{
		Statuses: []models.OrderStatus{models.StatusFirstUnassigned, models.StatusFirstPending},
	}, paging.New(2, 1))
	s.Require().NoError(err)
	s.Equal(2, res.Total)
	s.Len(res.Items, 1)
}

func (s *WorkflowSuite) TestQAFlow() {
	o1 := s.initOrder(s.book.ID)
	o2 := s.initOrder(s.book.ID)
	s.proofread(o1, contentmodels.WritingModeVertical)
	s.proofread(o2, contentmodels.WritingModeHorizontal)

	rows, err := s.service.ListBooks(s.ctx(s.qa))
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(s.book.ID, rows[0].Book.ID)
	s.Equal([]string{"Sima Qian"}, rows[0].AuthorNames)
	s.Equal(2, rows[0].Total)
	s.Equal(2, rows[0].UnassignedCount)
	s.Nil(rows[0].QAUserID)

	claimed, err := s.service.ApplyQA(s.ctx(s.qa), s.book.ID)
	s.Require().NoError(err)
	s.Require().Len(claimed, 2)
	s.Equal("QA20240304000001", claimed[0].QAReview.SerialID)
	s.Equal("QA20240304000002", claimed[1].QAReview.SerialID)
	for _, o := range claimed {
		s.Equal(models.StatusQAPending, o.Status)
	}

	rows, err = s.service.ListBooks(s.ctx(s.qa))
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(2, rows[0].MyPendingCount)
	s.Require().NotNil(rows[0].QAUserID)
	s.Equal(s.qa, *rows[0].QAUserID)
	s.Equal("qa", rows[0].QAUserName)

	rows, err = s.service.ListBooks(s.ctx(s.qa2))
	s.Require().NoError(err)
	s.Empty(rows, "held books are hidden from other qa users")
	rows, err = s.service.ListBooks(s.ctx(s.lead))
	s.Require().NoError(err)
	s.Len(rows, 1, "supervisors see every book")

	_, err = s.service.ApplyQA(s.ctx(s.qa2), s.book.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	sample, err := s.service.Sample(s.ctx(s.qa), s.book.ID, 50)
	s.Require().NoError(err)
	s.NotEmpty(sample.BulkID)
	s.Equal([]id.OrderID{o1.ID}, sample.OrderIDs)

	_, err = s.service.Sample(s.ctx(s.qa), s.book.ID, 50)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "a book is sampled once")

	page, err := s.service.QAOrders(s.ctx(s.qa), sample.BulkID, paging.New(1, 20))
	s.Require().NoError(err)
	s.Require().Equal(1, page.Total)
	s.Equal("final text "+o1.SerialID, page.Items[0].Review.ContentText)
	s.Require().NotNil(page.Items[0].Article)
	s.Equal(o1.ArticleID, page.Items[0].Article.ID)

	_, err = s.service.SubmitQA(s.ctx(s.qa2), s.book.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	passed, err := s.service.SubmitQA(s.ctx(s.qa), s.book.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]id.OrderID{o1.ID, o2.ID}, passed)
	s.Equal(models.StatusQASuccess, s.load(o1.ID).Status)

	a, err := s.content.GetArticle(s.ctx(s.lead), o1.ArticleID)
	s.Require().NoError(err)
	s.Equal(contentmodels.ArticleStatusRelease, a.Status)
	s.Equal("final text "+o1.SerialID, a.ContentText)

	h, err := s.service.History(s.ctx(s.lead), o2.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]kpimodels.Record{
		{UserID: s.first, Type: kpimodels.TypeHorizontalAudit, Count: 1, TriggerStep: kpimodels.TriggerQA, OrderID: o2.ID},
		{UserID: s.second, Type: kpimodels.TypeHorizontalAudit, Count: 1, TriggerStep: kpimodels.TriggerQA, OrderID: o2.ID},
	}, stripRecords(h.KPI))

	want := []eventmodels.Type{
		eventmodels.TypeOrderCreated,
		eventmodels.TypeOrderClaimed,
		eventmodels.TypeOrderSubmitted,
		eventmodels.TypeOrderClaimed,
		eventmodels.TypeOrderSubmitted,
		eventmodels.TypeQAClaimed,
		eventmodels.TypeQASampled,
		eventmodels.TypeQAPassed,
	}
	if diff := cmp.Diff(want, s.eventTypes(o1.ID)); diff != "" {
		s.Failf("event trail mismatch", "(-want +got):\n%s", diff)
	}
}

func (s *WorkflowSuite) TestSubmitQAMissingArticleChangesNothing() {
	o1 := s.initOrder(s.book.ID)
	o2 := s.initOrder(s.book.ID)
	s.proofread(o1, contentmodels.WritingModeVertical)
	s.proofread(o2, contentmodels.WritingModeVertical)
	_, err := s.service.ApplyQA(s.ctx(s.qa), s.book.ID)
	s.Require().NoError(err)

	err = s.content.DeleteArticle(s.ctx(s.lead), o2.ArticleID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "articles under review cannot be deleted")

	s.Require().NoError(s.articles.Delete(context.Background(), o2.ArticleID))
	_, err = s.service.SubmitQA(s.ctx(s.qa), s.book.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	for _, o := range []*models.Order{o1, o2} {
		s.Equal(models.StatusQAPending, s.load(o.ID).Status)
		h, err := s.service.History(s.ctx(s.lead), o.ID)
		s.Require().NoError(err)
		s.Empty(h.KPI)
		s.NotContains(s.eventTypes(o.ID), eventmodels.TypeQAPassed)
	}
	a, err := s.content.GetArticle(s.ctx(s.lead), o1.ArticleID)
	s.Require().NoError(err)
	s.NotEqual(contentmodels.ArticleStatusRelease, a.Status)
}

func (s *WorkflowSuite) TestScanBookHolderIsLatestQAUpdate() {
	qaOrder := func(user id.UserID, updated time.Time, bulk string) *models.Order {
		return &models.Order{
			Status:   models.StatusQAPending,
			QAReview: &models.QAReview{QAUserID: user, BulkID: bulk, UpdatedAt: updated},
		}
	}
	orders := []*models.Order{
		qaOrder(s.qa, s.now, "b1"),
		qaOrder(s.qa2, s.now.Add(time.Minute), ""),
		qaOrder(s.qa, s.now.Add(-time.Minute), ""),
		{Status: models.StatusQAUnassigned},
	}
	stat := models.BookQAStat{BookID: s.book.ID, Total: 4, Unassigned: 1}

	scan := scanBook(stat, orders, s.qa)
	s.Equal(s.qa2, scan.holder)
	s.Equal(2, scan.myPending)
	s.Equal("b1", scan.myBulk)

	scan = scanBook(stat, orders, s.qa2)
	s.Equal(s.qa2, scan.holder)
	s.Equal(1, scan.myPending)
	s.Empty(scan.myBulk)
}

func (s *WorkflowSuite) TestApplyQARejections() {
	_, err := s.service.ApplyQA(s.ctx(s.qa), id.BookID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.proofread(s.initOrder(s.book.ID), contentmodels.WritingModeVertical)
	third := s.newBook("Houhanshu")
	s.proofread(s.initOrder(third.ID), contentmodels.WritingModeVertical)

	other := s.newBook("Hanshu")
	s.initOrder(other.ID)
	_, err = s.service.ApplyQA(s.ctx(s.qa), other.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.ApplyQA(s.ctx(s.qa), s.book.ID)
	s.Require().NoError(err)
	_, err = s.service.ApplyQA(s.ctx(s.qa), third.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "pending qa orders must be finished first")

	_, err = s.service.Sample(s.ctx(s.qa), s.book.ID, 101)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.Sample(s.ctx(s.qa2), s.book.ID, 10)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *WorkflowSuite) TestReturnQAAndShuffle() {
	o := s.initOrder(s.book.ID)
	s.proofread(o, contentmodels.WritingModeVertical)
	_, err := s.service.ApplyQA(s.ctx(s.qa), s.book.ID)
	s.Require().NoError(err)

	_, err = s.service.ReturnQA(s.ctx(s.qa), nil, "empty")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.service.ReturnQA(s.ctx(s.qa), []id.OrderID{o.ID, id.OrderID(uuid.New())}, "unknown")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.ReturnQA(s.ctx(s.qa2), []id.OrderID{o.ID}, "not mine")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	for i := 1; i <= DefaultMaxReturned; i++ {
		returned, err := s.service.ReturnQA(s.ctx(s.qa), []id.OrderID{o.ID, o.ID}, "typo")
		s.Require().NoError(err)
		s.Require().Len(returned, 1)
		s.Equal(models.StatusQAReturned, returned[0].Status)
		s.Equal(i, returned[0].ReturnedCount)

		s.Equal(o.ID, s.apply(s.second).ID)
		resubmitted, err := s.service.Submit(s.ctx(s.second), o.ID, result("fixed", contentmodels.WritingModeVertical))
		s.Require().NoError(err)
		s.Equal(models.StatusQAPending, resubmitted.Status)
		s.Equal(s.qa, resubmitted.QAUserID())
	}

	returned, err := s.service.ReturnQA(s.ctx(s.qa), []id.OrderID{o.ID}, "still wrong")
	s.Require().NoError(err)
	shuffled := returned[0]
	s.Equal(models.StatusSecondUnassigned, shuffled.Status)
	s.True(shuffled.SecondUserID().IsNil())
	s.Equal(models.ReviewUnaudit, shuffled.QAReview.Status)

	h, err := s.service.History(s.ctx(s.lead), o.ID)
	s.Require().NoError(err)
	s.Equal([]kpimodels.Record{{
		UserID:      s.second,
		Type:        kpimodels.TypeReturnedShuffle,
		Count:       1,
		TriggerStep: kpimodels.TriggerQA,
		OrderID:     o.ID,
	}}, stripRecords(h.KPI))

	_, err = s.service.Apply(s.ctx(s.first), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNoOrdersAvailable), "first reviewer stays excluded from the second pass")
	s.Equal(o.ID, s.apply(s.third).ID)
}

func (s *WorkflowSuite) TestAssignQA() {
	o := s.initOrder(s.book.ID)
	s.proofread(o, contentmodels.WritingModeVertical)
	unready := s.newBook("Hanshu")
	s.initOrder(unready.ID)

	_, err := s.service.AssignQA(s.ctx(s.lead), []id.BookID{s.book.ID}, s.second)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "target must be able to take qa orders")

	_, err = s.service.AssignQA(s.ctx(s.lead), nil, s.qa)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.AssignQA(s.ctx(s.lead), []id.BookID{s.book.ID, unready.ID}, s.qa)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(models.StatusQAUnassigned, s.load(o.ID).Status, "nothing changes when one book is not ready")

	assigned, err := s.service.AssignQA(s.ctx(s.lead), []id.BookID{s.book.ID}, s.qa)
	s.Require().NoError(err)
	s.Require().Len(assigned, 1)
	s.Equal(models.StatusQAPending, assigned[0].Status)
	s.Equal(s.qa, assigned[0].QAUserID())
	s.Equal(s.lead, assigned[0].QAReview.OperatorID)
	serialID := assigned[0].QAReview.SerialID
	s.True(strings.HasPrefix(serialID, models.SerialPrefixQA))

	reassigned, err := s.service.AssignQA(s.ctx(s.lead), []id.BookID{s.book.ID}, s.qa2)
	s.Require().NoError(err)
	s.Equal(s.qa2, reassigned[0].QAUserID())
	s.Equal(serialID, reassigned[0].QAReview.SerialID, "reassignment keeps the qa serial")

	staff, err := s.service.Staff(s.ctx(s.lead))
	s.Require().NoError(err)
	names := make([]string, 0, len(staff))
	for _, u := range staff {
		names = append(names, u.Username)
	}
	s.Equal([]string{"qa", "qa2"}, names)
}

func (s *WorkflowSuite) newServiceWithLock(locks ClaimLock, ttl time.Duration) *Service {
	return New(s.orders, s.content, s.kpi, s.grants,
		WithLogger(s.logger),
		WithClaimLock(locks),
		WithClaimLockTTL(ttl),
	)
}

func (s *WorkflowSuite) TestApplyWorkerLock() {
	key := "apply:" + s.first.String()

	s.Run("releases the lease after handing out", func() {
		ctrl := gomock.NewController(s.T())
		locks := mocks.NewMockClaimLock(ctrl)
		gomock.InOrder(
			locks.EXPECT().Acquire(gomock.Any(), key, DefaultClaimLockTTL).Return("token-1", nil),
			locks.EXPECT().Release(gomock.Any(), key, "token-1").Return(nil),
		)
		_, err := s.newServiceWithLock(locks, DefaultClaimLockTTL).Apply(s.ctx(s.first), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNoOrdersAvailable))
	})

	s.Run("gives up with a conflict while another apply holds the lease", func() {
		ctrl := gomock.NewController(s.T())
		locks := mocks.NewMockClaimLock(ctrl)
		locks.EXPECT().Acquire(gomock.Any(), key, 60*time.Millisecond).
			Return("", sentinel.ErrLocked).MinTimes(2)
		_, err := s.newServiceWithLock(locks, 60*time.Millisecond).Apply(s.ctx(s.first), "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("lock backend failures are internal", func() {
		ctrl := gomock.NewController(s.T())
		locks := mocks.NewMockClaimLock(ctrl)
		locks.EXPECT().Acquire(gomock.Any(), key, DefaultClaimLockTTL).Return("", errors.New("connection refused"))
		_, err := s.newServiceWithLock(locks, DefaultClaimLockTTL).Apply(s.ctx(s.first), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *WorkflowSuite) TestSerialFailure() {
	ctrl := gomock.NewController(s.T())
	seq := mocks.NewMockSequence(ctrl)
	seq.EXPECT().Next(gomock.Any(), models.SerialPrefixOrder, gomock.Any()).Return(int64(0), errors.New("redis down"))

	pageStore, err := media.New(s.T().TempDir(), 1<<20, media.WithLogger(s.logger))
	s.Require().NoError(err)
	svc := New(s.orders, s.content, s.kpi, s.grants, WithLogger(s.logger), WithSequence(seq), WithMedia(pageStore))
	_, err = svc.InitOrder(s.ctx(s.lead), InitCommand{
		BookID: s.book.ID, ImageName: "p.png", Image: bytes.NewReader(pngPage(1)),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	res, err := s.service.List(s.ctx(s.lead), models.OrderFilter{}, paging.New(1, 10))
	s.Require().NoError(err)
	s.Zero(res.Total)
}
