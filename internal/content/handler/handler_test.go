package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findiff/internal/content/models"
	"findiff/internal/content/service"
	"findiff/internal/content/store/article"
	"findiff/internal/content/store/author"
	"findiff/internal/content/store/book"
	"findiff/internal/userprofile/catalog"
	id "findiff/pkg/domain"
	"findiff/pkg/testutil"
)

// grants is a permission checker backed by a fixed set per user.
type grants map[id.UserID][]string

func (g grants) HasAnyPerm(_ context.Context, userID id.UserID, codenames ...string) (bool, error) {
	for _, c := range codenames {
		if slices.Contains(g[userID], c) {
			return true, nil
		}
	}
	return false, nil
}

func newRouter(t *testing.T, perms grants) http.Handler {
	t.Helper()
	svc := service.New(author.New(), book.New(), article.New())
	h := New(svc, perms, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestContentRoutes(t *testing.T) {
	editor := id.UserID(uuid.New())
	viewer := id.UserID(uuid.New())
	router := newRouter(t, grants{
		editor: {catalog.PermListContent, catalog.PermCreateContent, catalog.PermDetailContent},
		viewer: {catalog.PermListContent},
	})
	do := func(as id.UserID, method, path string, body any) *http.Request {
		req := testutil.NewJSONRequest(t, method, path, body)
		return testutil.WithUserID(req, as)
	}

	testutil.Given(t, "a viewer without create permission", func(t *testing.T) {
		rr := testutil.DoRequest(router, do(viewer, http.MethodPost, "/content/books", map[string]any{"name": "Shiji"}))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	var bookID string
	testutil.Given(t, "an editor creating a book and an article", func(t *testing.T) {
		rr := testutil.DoRequest(router, do(editor, http.MethodPost, "/content/books", map[string]any{"name": "Shiji", "pages": 130}))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		b := testutil.UnmarshalResponse[models.Book](t, rr)
		bookID = b.ID.String()

		rr = testutil.DoRequest(router, do(editor, http.MethodPost, "/content/articles", map[string]any{
			"book_id": bookID, "title": "Annals", "content_image": "a.png", "writing_mode_origin": "vertical",
		}))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		testutil.AssertJSONContains(t, rr, "status", "unaudit")
	})

	testutil.When(t, "the viewer filters articles by book and status", func(t *testing.T) {
		rr := testutil.DoRequest(router, do(viewer, http.MethodGet, "/content/articles?book_id="+bookID+"&status=unaudit,auditing", nil))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "count", float64(1))

		rr = testutil.DoRequest(router, do(viewer, http.MethodGet, "/content/articles?status=draft", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")

		rr = testutil.DoRequest(router, do(viewer, http.MethodGet, "/content/articles?created_from=yesterday", nil))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	testutil.Then(t, "article detail resolves the book", func(t *testing.T) {
		rr := testutil.DoRequest(router, do(editor, http.MethodGet, "/content/articles?search=annals", nil))
		res := testutil.UnmarshalResponse[struct {
			Results []struct {
				ID   string `json:"id"`
				Book struct {
					Name string `json:"name"`
				} `json:"book"`
			} `json:"results"`
		}](t, rr)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "Shiji", res.Results[0].Book.Name)

		rr = testutil.DoRequest(router, do(editor, http.MethodGet, "/content/articles/"+res.Results[0].ID, nil))
		testutil.AssertStatusOK(t, rr)

		rr = testutil.DoRequest(router, do(editor, http.MethodGet, "/content/articles/not-a-uuid", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}
