package handler

import (
	"net/http"
	"strings"

	"findiff/internal/content/models"
	"findiff/internal/content/service"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/httputil"
)

type AuthorRequest struct {
	Name          string `json:"name"`
	Detail        string `json:"detail"`
	Dynasty       string `json:"dynasty"`
	WritingSchool string `json:"writing_school"`
}

func (r *AuthorRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func (r *AuthorRequest) command() service.AuthorCommand {
	return service.AuthorCommand{Name: r.Name, Detail: r.Detail, Dynasty: r.Dynasty, WritingSchool: r.WritingSchool}
}

type BookRequest struct {
	Snum      string   `json:"snum"`
	Name      string   `json:"name"`
	Detail    string   `json:"detail"`
	Dynasty   string   `json:"dynasty"`
	Genre     string   `json:"genre"`
	Pages     int      `json:"pages"`
	AuthorIDs []string `json:"author_ids"`

	authorIDs []id.AuthorID
}

func (r *BookRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.authorIDs = make([]id.AuthorID, 0, len(r.AuthorIDs))
	for _, raw := range r.AuthorIDs {
		authorID, err := id.ParseAuthorID(raw)
		if err != nil {
			return err
		}
		r.authorIDs = append(r.authorIDs, authorID)
	}
	return nil
}

func (r *BookRequest) command() service.BookCommand {
	return service.BookCommand{
		Snum: r.Snum, Name: r.Name, Detail: r.Detail, Dynasty: r.Dynasty,
		Genre: r.Genre, Pages: r.Pages, AuthorIDs: r.authorIDs,
	}
}

type ArticleRequest struct {
	BookID            string `json:"book_id"`
	AuthorID          string `json:"author_id"`
	Snum              string `json:"snum"`
	Title             string `json:"title"`
	BookPage          int    `json:"book_page"`
	ArticlePage       int    `json:"article_page"`
	Status            string `json:"status"`
	WritingModeOrigin string `json:"writing_mode_origin"`
	WritingMode       string `json:"writing_mode"`
	ContentImage      string `json:"content_image"`
	ContentText       string `json:"content_text"`

	bookID   id.BookID
	authorID id.AuthorID
}

func (r *ArticleRequest) Validate() error {
	if r.BookID != "" {
		bookID, err := id.ParseBookID(r.BookID)
		if err != nil {
			return err
		}
		r.bookID = bookID
	}
	if r.AuthorID != "" {
		authorID, err := id.ParseAuthorID(r.AuthorID)
		if err != nil {
			return err
		}
		r.authorID = authorID
	}
	return nil
}

func (r *ArticleRequest) command() service.ArticleCommand {
	return service.ArticleCommand{
		BookID:            r.bookID,
		AuthorID:          r.authorID,
		Snum:              r.Snum,
		Title:             r.Title,
		BookPage:          r.BookPage,
		ArticlePage:       r.ArticlePage,
		Status:            models.ArticleStatus(r.Status),
		WritingModeOrigin: models.WritingMode(r.WritingModeOrigin),
		WritingMode:       models.WritingMode(r.WritingMode),
		ContentImage:      r.ContentImage,
		ContentText:       r.ContentText,
	}
}

// articleFilterFromQuery reads search, status (comma separated), book_id,
// operator_id and RFC 3339 created_/updated_ from/to bounds.
func articleFilterFromQuery(r *http.Request) (models.ArticleFilter, error) {
	q := r.URL.Query()
	f := models.ArticleFilter{Search: q.Get("search")}
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			status := models.ArticleStatus(strings.TrimSpace(st))
			if !status.IsValid() {
				return f, dErrors.New(dErrors.CodeValidation, "invalid status filter")
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if raw := q.Get("book_id"); raw != "" {
		bookID, err := id.ParseBookID(raw)
		if err != nil {
			return f, err
		}
		f.BookID = bookID
	}
	if raw := q.Get("operator_id"); raw != "" {
		operator, err := id.ParseUserID(raw)
		if err != nil {
			return f, err
		}
		f.OperatorID = operator
	}
	var err error
	if f.Created, err = timeRange(r, "created_from", "created_to"); err != nil {
		return f, err
	}
	if f.Updated, err = timeRange(r, "updated_from", "updated_to"); err != nil {
		return f, err
	}
	return f, nil
}

func timeRange(r *http.Request, fromKey, toKey string) (models.TimeRange, error) {
	var (
		tr  models.TimeRange
		err error
	)
	if tr.From, err = httputil.QueryTime(r, fromKey); err != nil {
		return tr, err
	}
	if tr.To, err = httputil.QueryTime(r, toKey); err != nil {
		return tr, err
	}
	return tr, nil
}
