package handler

import (
	"net/http"
	"strconv"

	contentmodels "findiff/internal/content/models"
	"findiff/internal/workflow/models"
	"findiff/internal/workflow/service"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/httputil"
	strutil "findiff/pkg/platform/strings"
)

type ApplyRequest struct {
	AuditStatus string `json:"audit_status"`
}

func (r *ApplyRequest) Validate() error {
	if r.AuditStatus != "" && !models.ReviewStatus(r.AuditStatus).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid audit_status")
	}
	return nil
}

// ResultRequest carries a proofreading result for submit and suspend.
type ResultRequest struct {
	ContentText     string `json:"content_text"`
	ArticleTitle    string `json:"article_title"`
	ArticlePage     int    `json:"article_page"`
	ArticleAuthorID string `json:"article_author_id"`
	WritingMode     string `json:"writing_mode"`
	Remark          string `json:"remark"`

	authorID id.AuthorID
}

func (r *ResultRequest) Validate() error {
	if r.ArticleAuthorID != "" {
		authorID, err := id.ParseAuthorID(r.ArticleAuthorID)
		if err != nil {
			return err
		}
		r.authorID = authorID
	}
	return nil
}

func (r *ResultRequest) result() models.ReviewResult {
	return models.ReviewResult{
		ContentText:  r.ContentText,
		ArticleTitle: r.ArticleTitle,
		ArticlePage:  r.ArticlePage,
		AuthorID:     r.authorID,
		WritingMode:  contentmodels.WritingMode(r.WritingMode),
		Remark:       r.Remark,
	}
}

type ReturnRequest struct {
	OrderID        string `json:"order_id"`
	ReturnedRemark string `json:"returned_remark"`

	orderID id.OrderID
}

func (r *ReturnRequest) Validate() error {
	orderID, err := id.ParseOrderID(r.OrderID)
	if err != nil {
		return err
	}
	r.orderID = orderID
	return nil
}

type BookRequest struct {
	Book string `json:"book"`

	bookID id.BookID
}

func (r *BookRequest) Validate() error {
	bookID, err := id.ParseBookID(r.Book)
	if err != nil {
		return err
	}
	r.bookID = bookID
	return nil
}

type SampleRequest struct {
	Book    string `json:"book"`
	QARatio int    `json:"qa_ratio"`

	bookID id.BookID
}

func (r *SampleRequest) Validate() error {
	bookID, err := id.ParseBookID(r.Book)
	if err != nil {
		return err
	}
	r.bookID = bookID
	if r.QARatio < 0 || r.QARatio > 100 {
		return dErrors.New(dErrors.CodeValidation, "qa_ratio must be between 0 and 100")
	}
	return nil
}

type QAReturnRequest struct {
	ReturnedOrders []string `json:"returned_orders"`
	ReturnedRemark string   `json:"returned_remark"`

	orderIDs []id.OrderID
}

func (r *QAReturnRequest) Validate() error {
	if len(r.ReturnedOrders) == 0 {
		return dErrors.New(dErrors.CodeValidation, "returned_orders is required")
	}
	r.orderIDs = make([]id.OrderID, 0, len(r.ReturnedOrders))
	for _, raw := range r.ReturnedOrders {
		orderID, err := id.ParseOrderID(raw)
		if err != nil {
			return err
		}
		r.orderIDs = append(r.orderIDs, orderID)
	}
	return nil
}

type AssignRequest struct {
	Books  []string `json:"books"`
	UserID string   `json:"user_id"`

	bookIDs []id.BookID
	target  id.UserID
}

func (r *AssignRequest) Validate() error {
	if len(r.Books) == 0 {
		return dErrors.New(dErrors.CodeValidation, "books is required")
	}
	r.bookIDs = make([]id.BookID, 0, len(r.Books))
	for _, raw := range r.Books {
		bookID, err := id.ParseBookID(raw)
		if err != nil {
			return err
		}
		r.bookIDs = append(r.bookIDs, bookID)
	}
	target, err := id.ParseUserID(r.UserID)
	if err != nil {
		return err
	}
	r.target = target
	return nil
}

// initCommandFromForm reads the multipart upload that creates an order. The
// caller closes the returned image.
func initCommandFromForm(r *http.Request) (service.InitCommand, func(), error) {
	var cmd service.InitCommand
	bookID, err := id.ParseBookID(r.FormValue("book_id"))
	if err != nil {
		return cmd, nil, err
	}
	cmd.BookID = bookID
	if raw := r.FormValue("author_id"); raw != "" {
		authorID, err := id.ParseAuthorID(raw)
		if err != nil {
			return cmd, nil, err
		}
		cmd.AuthorID = authorID
	}
	if cmd.BookPage, err = formInt(r, "book_page"); err != nil {
		return cmd, nil, err
	}
	if cmd.ArticlePage, err = formInt(r, "article_page"); err != nil {
		return cmd, nil, err
	}
	cmd.Snum = r.FormValue("snum")
	cmd.Title = r.FormValue("title")
	cmd.WritingModeOrigin = contentmodels.WritingMode(r.FormValue("writing_mode_origin"))
	cmd.WritingMode = contentmodels.WritingMode(r.FormValue("writing_mode"))
	cmd.ContentText = r.FormValue("content_text")

	file, header, err := r.FormFile("content_image")
	if err != nil {
		return cmd, nil, dErrors.New(dErrors.CodeValidation, "content_image is required")
	}
	cmd.Image = file
	cmd.ImageName = header.Filename
	return cmd, func() { _ = file.Close() }, nil
}

func formInt(r *http.Request, key string) (int, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, key+" must be an integer")
	}
	return n, nil
}

// orderFilterFromQuery reads status (comma separated), assignee_id,
// qa_user_id, book_id, bulk_id, serial_id and RFC 3339 created_from/created_to.
func orderFilterFromQuery(r *http.Request) (models.OrderFilter, error) {
	q := r.URL.Query()
	f := models.OrderFilter{BulkID: q.Get("bulk_id"), SerialID: q.Get("serial_id")}
	if raw := q.Get("status"); raw != "" {
		for _, st := range strutil.SplitList(raw) {
			status := models.OrderStatus(st)
			if !status.IsValid() {
				return f, dErrors.New(dErrors.CodeValidation, "invalid status filter")
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	var err error
	if raw := q.Get("assignee_id"); raw != "" {
		if f.AssigneeID, err = id.ParseUserID(raw); err != nil {
			return f, err
		}
	}
	if raw := q.Get("qa_user_id"); raw != "" {
		if f.QAUserID, err = id.ParseUserID(raw); err != nil {
			return f, err
		}
	}
	if raw := q.Get("book_id"); raw != "" {
		if f.BookID, err = id.ParseBookID(raw); err != nil {
			return f, err
		}
	}
	if f.Created.From, err = httputil.QueryTime(r, "created_from"); err != nil {
		return f, err
	}
	if f.Created.To, err = httputil.QueryTime(r, "created_to"); err != nil {
		return f, err
	}
	return f, nil
}
