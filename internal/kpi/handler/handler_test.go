package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findiff/internal/kpi/models"
	"findiff/internal/userprofile/catalog"
	id "findiff/pkg/domain"
	"findiff/pkg/testutil"
)

type allow map[id.UserID]bool

func (a allow) HasAnyPerm(_ context.Context, userID id.UserID, codenames ...string) (bool, error) {
	for _, c := range codenames {
		if c == catalog.PermListUserKPI && a[userID] {
			return true, nil
		}
	}
	return false, nil
}

type stubService struct {
	got  models.Filter
	rows []*models.SummaryRow
}

func (s *stubService) Summary(_ context.Context, filter models.Filter) ([]*models.SummaryRow, error) {
	s.got = filter
	return s.rows, nil
}

func TestSummaryRoute(t *testing.T) {
	manager := id.UserID(uuid.New())
	reviewer := id.UserID(uuid.New())
	svc := &stubService{rows: []*models.SummaryRow{{
		UserID: reviewer, Username: "lin", Totals: map[models.Type]int{models.TypeVerticalAudit: 3},
	}}}
	h := New(svc, allow{manager: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)

	t.Run("requires list_user_kpi", func(t *testing.T) {
		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodGet, "/kpi"), reviewer)
		rr := testutil.DoRequest(r, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	t.Run("passes the filter through", func(t *testing.T) {
		path := "/kpi?search=li&user_id=" + reviewer.String() +
			"&created_from=2026-03-01T00:00:00Z&created_to=2026-04-01T00:00:00Z"
		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodGet, path), manager)
		rr := testutil.DoRequest(r, req)
		testutil.AssertStatusOK(t, rr)

		assert.Equal(t, "li", svc.got.Search)
		assert.Equal(t, reviewer, svc.got.UserID)
		assert.True(t, svc.got.Created.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, svc.got.Created.To.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

		body := testutil.UnmarshalResponse[summaryResponse](t, rr)
		require.Len(t, body.Results, 1)
		assert.Equal(t, 3, body.Results[0].Totals[models.TypeVerticalAudit])
	})

	t.Run("rejects malformed bounds", func(t *testing.T) {
		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodGet, "/kpi?created_from=yesterday"), manager)
		rr := testutil.DoRequest(r, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
