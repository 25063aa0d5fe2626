// Package handler exposes author, book and article management under /content.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"findiff/internal/content/models"
	"findiff/internal/content/service"
	"findiff/internal/userprofile/catalog"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/httputil"
	authmw "findiff/pkg/platform/middleware/auth"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

type Service interface {
	CreateAuthor(ctx context.Context, cmd service.AuthorCommand) (*models.Author, error)
	UpdateAuthor(ctx context.Context, authorID id.AuthorID, cmd service.AuthorCommand) (*models.Author, error)
	DeleteAuthor(ctx context.Context, authorID id.AuthorID) error
	GetAuthor(ctx context.Context, authorID id.AuthorID) (*models.Author, error)
	ListAuthors(ctx context.Context, search string, page paging.Page) (paging.Result[*models.Author], error)

	CreateBook(ctx context.Context, cmd service.BookCommand) (*models.Book, error)
	UpdateBook(ctx context.Context, bookID id.BookID, cmd service.BookCommand) (*models.Book, error)
	DeleteBook(ctx context.Context, bookID id.BookID) error
	GetBook(ctx context.Context, bookID id.BookID) (*models.Book, error)
	ListBooks(ctx context.Context, search string, page paging.Page) (paging.Result[*models.Book], error)

	CreateArticle(ctx context.Context, cmd service.ArticleCommand) (*models.Article, error)
	UpdateArticle(ctx context.Context, articleID id.ArticleID, cmd service.ArticleCommand) (*models.Article, error)
	DeleteArticle(ctx context.Context, articleID id.ArticleID) error
	GetArticle(ctx context.Context, articleID id.ArticleID) (*service.ArticleDetail, error)
	ListArticles(ctx context.Context, filter models.ArticleFilter, page paging.Page) (paging.Result[*service.ArticleDetail], error)
}

type Handler struct {
	service Service
	perms   authmw.PermissionChecker
	logger  *slog.Logger
}

func New(svc Service, perms authmw.PermissionChecker, logger *slog.Logger) *Handler {
	return &Handler{service: svc, perms: perms, logger: logger}
}

// Register mounts /content routes. Every resource shares the content
// management permissions.
func (h *Handler) Register(r chi.Router) {
	perm := func(codenames ...string) func(http.Handler) http.Handler {
		return authmw.RequirePerms(h.perms, h.logger, codenames...)
	}
	r.Route("/content", func(r chi.Router) {
		r.Route("/authors", func(r chi.Router) {
			r.With(perm(catalog.PermListContent)).Get("/", h.handleListAuthors)
			r.With(perm(catalog.PermCreateContent)).Post("/", h.handleCreateAuthor)
			r.With(perm(catalog.PermDetailContent)).Get("/{id}", h.handleGetAuthor)
			r.With(perm(catalog.PermModifyContent)).Put("/{id}", h.handleUpdateAuthor)
			r.With(perm(catalog.PermDeleteContent)).Delete("/{id}", h.handleDeleteAuthor)
		})
		r.Route("/books", func(r chi.Router) {
			r.With(perm(catalog.PermListContent)).Get("/", h.handleListBooks)
			r.With(perm(catalog.PermCreateContent)).Post("/", h.handleCreateBook)
			r.With(perm(catalog.PermDetailContent)).Get("/{id}", h.handleGetBook)
			r.With(perm(catalog.PermModifyContent)).Put("/{id}", h.handleUpdateBook)
			r.With(perm(catalog.PermDeleteContent)).Delete("/{id}", h.handleDeleteBook)
		})
		r.Route("/articles", func(r chi.Router) {
			r.With(perm(catalog.PermListContent)).Get("/", h.handleListArticles)
			r.With(perm(catalog.PermCreateContent)).Post("/", h.handleCreateArticle)
			r.With(perm(catalog.PermDetailContent)).Get("/{id}", h.handleGetArticle)
			r.With(perm(catalog.PermModifyContent)).Put("/{id}", h.handleUpdateArticle)
			r.With(perm(catalog.PermDeleteContent)).Delete("/{id}", h.handleDeleteArticle)
		})
	})
}

func decode[T any](h *Handler, w http.ResponseWriter, r *http.Request) (*T, bool) {
	ctx := r.Context()
	return httputil.DecodeAndPrepare[T](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
}

// Authors

func (h *Handler) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListAuthors(r.Context(), r.URL.Query().Get("search"), paging.FromRequest(r))
	h.respond(w, r, http.StatusOK, res, err, "failed to list authors")
}

func (h *Handler) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[AuthorRequest](h, w, r)
	if !ok {
		return
	}
	a, err := h.service.CreateAuthor(r.Context(), req.command())
	h.respond(w, r, http.StatusCreated, a, err, "failed to create author")
}

func (h *Handler) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, err := id.ParseAuthorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.GetAuthor(r.Context(), authorID)
	h.respond(w, r, http.StatusOK, a, err, "failed to get author")
}

func (h *Handler) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, err := id.ParseAuthorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := decode[AuthorRequest](h, w, r)
	if !ok {
		return
	}
	a, err := h.service.UpdateAuthor(r.Context(), authorID, req.command())
	h.respond(w, r, http.StatusOK, a, err, "failed to update author")
}

func (h *Handler) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, err := id.ParseAuthorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.noContent(w, r, h.service.DeleteAuthor(r.Context(), authorID), "failed to delete author")
}

// Books

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListBooks(r.Context(), r.URL.Query().Get("search"), paging.FromRequest(r))
	h.respond(w, r, http.StatusOK, res, err, "failed to list books")
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[BookRequest](h, w, r)
	if !ok {
		return
	}
	b, err := h.service.CreateBook(r.Context(), req.command())
	h.respond(w, r, http.StatusCreated, b, err, "failed to create book")
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := id.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.service.GetBook(r.Context(), bookID)
	h.respond(w, r, http.StatusOK, b, err, "failed to get book")
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := id.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := decode[BookRequest](h, w, r)
	if !ok {
		return
	}
	b, err := h.service.UpdateBook(r.Context(), bookID, req.command())
	h.respond(w, r, http.StatusOK, b, err, "failed to update book")
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := id.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.noContent(w, r, h.service.DeleteBook(r.Context(), bookID), "failed to delete book")
}

// Articles

func (h *Handler) handleListArticles(w http.ResponseWriter, r *http.Request) {
	filter, err := articleFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.ListArticles(r.Context(), filter, paging.FromRequest(r))
	h.respond(w, r, http.StatusOK, res, err, "failed to list articles")
}

func (h *Handler) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[ArticleRequest](h, w, r)
	if !ok {
		return
	}
	a, err := h.service.CreateArticle(r.Context(), req.command())
	h.respond(w, r, http.StatusCreated, a, err, "failed to create article")
}

func (h *Handler) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := id.ParseArticleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.GetArticle(r.Context(), articleID)
	h.respond(w, r, http.StatusOK, a, err, "failed to get article")
}

func (h *Handler) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := id.ParseArticleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := decode[ArticleRequest](h, w, r)
	if !ok {
		return
	}
	a, err := h.service.UpdateArticle(r.Context(), articleID, req.command())
	h.respond(w, r, http.StatusOK, a, err, "failed to update article")
}

func (h *Handler) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := id.ParseArticleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.noContent(w, r, h.service.DeleteArticle(r.Context(), articleID), "failed to delete article")
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error, msg string) {
	if err != nil {
		h.fail(r.Context(), w, msg, err)
		return
	}
	httputil.WriteJSON(w, status, body)
}

func (h *Handler) noContent(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if err != nil {
		h.fail(r.Context(), w, msg, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
