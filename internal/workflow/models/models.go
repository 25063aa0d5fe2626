// Package models defines audit orders and the state machine that moves them
// through first-pass proofreading, second-pass proofreading and QA.
package models

import (
	"fmt"
	"strings"
	"time"

	contentmodels "findiff/internal/content/models"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

const (
	SerialPrefixOrder = "AUDIT"
	SerialPrefixQA    = "QA"
)

// FormatSerial renders prefix + YYYYMMDD + a six digit daily sequence.
func FormatSerial(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%06d", prefix, day.Format("20060102"), seq)
}

// Review is one proofreading pass: who holds it and the draft or result.
type Review struct {
	AssigneeID      id.UserID                 `json:"assignee_id"`
	Status          ReviewStatus              `json:"status"`
	ContentText     string                    `json:"content_text"`
	ArticleTitle    string                    `json:"article_title"`
	ArticlePage     int                       `json:"article_page"`
	ArticleAuthorID id.AuthorID               `json:"article_author_id"`
	WritingMode     contentmodels.WritingMode `json:"writing_mode"`
	Remark          string                    `json:"remark"`
	OperatorID      id.UserID                 `json:"operator_id"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// HasContent reports whether the pass recorded any draft or result yet.
func (r *Review) HasContent() bool {
	return r != nil && (r.ContentText != "" || r.ArticleTitle != "" || r.WritingMode != "")
}

// Result returns the pass's content as a submission.
func (r *Review) Result() ReviewResult {
	return ReviewResult{
		ContentText:  r.ContentText,
		ArticleTitle: r.ArticleTitle,
		ArticlePage:  r.ArticlePage,
		AuthorID:     r.ArticleAuthorID,
		WritingMode:  r.WritingMode,
	}
}

func (r *Review) write(res ReviewResult, status ReviewStatus, operator id.UserID, now time.Time) {
	r.ContentText = res.ContentText
	r.ArticleTitle = res.ArticleTitle
	r.ArticlePage = res.ArticlePage
	r.ArticleAuthorID = res.AuthorID
	r.WritingMode = res.WritingMode
	if res.Remark != "" {
		r.Remark = res.Remark
	}
	r.Status = status
	r.OperatorID = operator
	r.UpdatedAt = now
}

func (r *Review) unassign(operator id.UserID, now time.Time) {
	r.AssigneeID = id.UserID{}
	r.Status = ReviewUnassign
	r.OperatorID = operator
	r.UpdatedAt = now
}

// QAReview is the QA pass over an order.
type QAReview struct {
	QAUserID   id.UserID    `json:"qa_user_id"`
	Status     ReviewStatus `json:"status"`
	BulkID     string       `json:"bulk_id,omitempty"`
	SerialID   string       `json:"serial_id"`
	Remark     string       `json:"remark"`
	OperatorID id.UserID    `json:"operator_id"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (q *QAReview) Clone() *QAReview {
	if q == nil {
		return nil
	}
	c := *q
	return &c
}

// ReviewResult is what a reviewer submits or parks with a suspend.
type ReviewResult struct {
	ContentText  string                    `json:"content_text"`
	ArticleTitle string                    `json:"article_title"`
	ArticlePage  int                       `json:"article_page"`
	AuthorID     id.AuthorID               `json:"article_author_id"`
	WritingMode  contentmodels.WritingMode `json:"writing_mode"`
	Remark       string                    `json:"remark,omitempty"`
}

// Validate checks a final submission. Suspended drafts skip it.
func (r ReviewResult) Validate() error {
	if strings.TrimSpace(r.ContentText) == "" {
		return dErrors.New(dErrors.CodeValidation, "content text is required")
	}
	if !r.WritingMode.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "writing mode must be horizontal or vertical")
	}
	if r.ArticlePage < 0 {
		return dErrors.New(dErrors.CodeValidation, "article page must not be negative")
	}
	if len(r.ArticleTitle) > contentmodels.MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "article title is too long")
	}
	return nil
}

// ValidateDraft checks the fields a suspended draft may carry.
func (r ReviewResult) ValidateDraft() error {
	if r.WritingMode != "" && !r.WritingMode.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "writing mode must be horizontal or vertical")
	}
	if r.ArticlePage < 0 {
		return dErrors.New(dErrors.CodeValidation, "article page must not be negative")
	}
	return nil
}

// PublishResult converts an accepted result into article content.
func (r ReviewResult) PublishResult() contentmodels.PublishResult {
	return contentmodels.PublishResult{
		Title:       r.ArticleTitle,
		Page:        r.ArticlePage,
		AuthorID:    r.AuthorID,
		WritingMode: r.WritingMode,
		ContentText: r.ContentText,
	}
}

// Order is one article's trip through the review pipeline.
type Order struct {
	ID             id.OrderID   `json:"id"`
	SerialID       string       `json:"serial_id"`
	ArticleID      id.ArticleID `json:"article_id"`
	BookID         id.BookID    `json:"book_id"`
	Status         OrderStatus  `json:"order_status"`
	FirstReview    *Review      `json:"first_review,omitempty"`
	SecondReview   *Review      `json:"second_review,omitempty"`
	QAReview       *QAReview    `json:"qa_review,omitempty"`
	ReturnedCount  int          `json:"returned_count"`
	ReturnedRemark string       `json:"returned_remark"`
	OperatorID     id.UserID    `json:"operator_id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.FirstReview = o.FirstReview.Clone()
	c.SecondReview = o.SecondReview.Clone()
	c.QAReview = o.QAReview.Clone()
	return &c
}

// Stage is the proofreading pass that currently owns the order.
func (o *Order) Stage() Stage {
	return ReviewStage(o.Status)
}

// CurrentReview returns the review of the owning pass, or nil.
func (o *Order) CurrentReview() *Review {
	return o.Review(o.Stage())
}

// Review returns the review for a proofreading stage.
func (o *Order) Review(stage Stage) *Review {
	switch stage {
	case StageFirst:
		return o.FirstReview
	case StageSecond:
		return o.SecondReview
	}
	return nil
}

func (o *Order) FirstUserID() id.UserID {
	if o.FirstReview == nil {
		return id.UserID{}
	}
	return o.FirstReview.AssigneeID
}

func (o *Order) SecondUserID() id.UserID {
	if o.SecondReview == nil {
		return id.UserID{}
	}
	return o.SecondReview.AssigneeID
}

func (o *Order) QAUserID() id.UserID {
	if o.QAReview == nil {
		return id.UserID{}
	}
	return o.QAReview.QAUserID
}

func (o *Order) BulkID() string {
	if o.QAReview == nil {
		return ""
	}
	return o.QAReview.BulkID
}

// Matches reports whether the order is in a.Status and held by user on a.Stage.
func (o *Order) Matches(user id.UserID, a Assignment) bool {
	if o.Status != a.Status {
		return false
	}
	switch a.Stage {
	case StageFirst:
		return o.FirstUserID() == user
	case StageSecond:
		return o.SecondUserID() == user
	case StageQA:
		return o.QAUserID() == user
	}
	return false
}

func (o *Order) touch(operator id.UserID, now time.Time) {
	o.OperatorID = operator
	o.UpdatedAt = now
}

func claim(r *Review, user id.UserID, now time.Time) *Review {
	if r == nil {
		r = &Review{CreatedAt: now}
	}
	r.AssigneeID = user
	r.Status = ReviewUnaudit
	r.OperatorID = user
	r.UpdatedAt = now
	return r
}

// ClaimFirst hands an unassigned first-pass order to user.
func (o *Order) ClaimFirst(user id.UserID, now time.Time) error {
	if o.Status != StatusFirstUnassigned {
		return invalidState(o, "claimed for first pass")
	}
	o.FirstReview = claim(o.FirstReview, user, now)
	o.Status = StatusFirstPending
	o.touch(user, now)
	return nil
}

// ClaimSecond hands an unassigned second-pass order to user. The first
// reviewer may not take the second pass of their own order.
func (o *Order) ClaimSecond(user id.UserID, now time.Time) error {
	if o.Status != StatusSecondUnassigned {
		return invalidState(o, "claimed for second pass")
	}
	if o.FirstUserID() == user {
		return dErrors.New(dErrors.CodeForbidden, "first reviewer cannot take the second pass")
	}
	o.SecondReview = claim(o.SecondReview, user, now)
	o.Status = StatusSecondPending
	o.touch(user, now)
	return nil
}

func (o *Order) requireAssignee(user id.UserID) (*Review, error) {
	current := o.CurrentReview()
	if current == nil || current.AssigneeID != user {
		return nil, dErrors.New(dErrors.CodeForbidden, "order is not assigned to you")
	}
	return current, nil
}

// Submit records a proofreading result and moves the order to the next pass.
// A first-pass resubmission after a second-pass return goes straight back to
// the second reviewer, who re-checks the new result.
func (o *Order) Submit(user id.UserID, res ReviewResult, now time.Time) error {
	if err := res.Validate(); err != nil {
		return err
	}
	if _, err := o.requireAssignee(user); err != nil {
		return err
	}
	from := o.Status
	switch {
	case from.In(firstSubmittable...):
		o.FirstReview.write(res, ReviewSuccess, user, now)
		o.Status = StatusSecondUnassigned
		if from == StatusSecondReturned && o.SecondReview != nil {
			o.SecondReview.write(res, ReviewUnaudit, user, now)
			o.Status = StatusSecondPending
		}
	case from.In(secondSubmittable...):
		o.SecondReview.write(res, ReviewSuccess, user, now)
		o.Status = StatusQAUnassigned
		if from == StatusQAReturned {
			o.Status = StatusQAPending
		}
	default:
		return invalidState(o, "submitted")
	}
	o.touch(user, now)
	return nil
}

// Suspend parks the current pass with its draft.
func (o *Order) Suspend(user id.UserID, draft ReviewResult, now time.Time) error {
	if err := draft.ValidateDraft(); err != nil {
		return err
	}
	current, err := o.requireAssignee(user)
	if err != nil {
		return err
	}
	switch {
	case o.Status.In(firstSuspendable...):
		o.Status = StatusFirstSuspended
	case o.Status.In(secondSuspendable...):
		o.Status = StatusSecondSuspended
	default:
		return invalidState(o, "suspended")
	}
	current.write(draft, ReviewSuspend, user, now)
	o.touch(user, now)
	return nil
}

// Shuffle describes an order put back into an unassigned pool after too many
// returns. Penalized is the reviewer who lost it.
type Shuffle struct {
	Penalized id.UserID
	Trigger   Stage
}

// ReturnToFirst sends a second-pass order back to its first reviewer. When
// the returned count passes maxReturned the order is shuffled into the first-pass
// pool instead.
func (o *Order) ReturnToFirst(user id.UserID, remark string, maxReturned int, now time.Time) (*Shuffle, error) {
	if o.Status != StatusSecondPending {
		return nil, invalidState(o, "returned")
	}
	if o.SecondUserID() != user {
		return nil, dErrors.New(dErrors.CodeForbidden, "order is not assigned to you")
	}
	if o.FirstReview == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "order has no first review")
	}
	o.FirstReview.Status = ReviewReturned
	o.FirstReview.OperatorID = user
	o.FirstReview.UpdatedAt = now
	o.Status = StatusSecondReturned
	o.ReturnedRemark = remark
	o.ReturnedCount++
	o.touch(user, now)

	if o.ReturnedCount <= maxReturned {
		return nil, nil
	}
	shuffle := &Shuffle{Penalized: o.FirstReview.AssigneeID, Trigger: StageFirst}
	o.FirstReview.unassign(user, now)
	o.ReturnedCount = 0
	o.ReturnedRemark = ""
	o.Status = StatusFirstUnassigned
	return shuffle, nil
}

// ClaimQA gives an unassigned QA order to user with a fresh QA serial.
func (o *Order) ClaimQA(user id.UserID, serial string, now time.Time) error {
	if o.Status != StatusQAUnassigned {
		return invalidState(o, "claimed for qa")
	}
	o.QAReview = &QAReview{
		QAUserID:   user,
		Status:     ReviewUnaudit,
		SerialID:   serial,
		OperatorID: user,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.Status = StatusQAPending
	o.touch(user, now)
	return nil
}

// AssignQA hands the QA pass to target on a supervisor's behalf. Orders
// still waiting for QA become pending; orders already pending change hands.
func (o *Order) AssignQA(target, operator id.UserID, serial string, now time.Time) error {
	if !o.Status.In(QAStatuses...) {
		return invalidState(o, "assigned for qa")
	}
	if o.QAReview == nil {
		o.QAReview = &QAReview{Status: ReviewUnaudit, SerialID: serial, CreatedAt: now}
	}
	o.QAReview.QAUserID = target
	o.QAReview.OperatorID = operator
	o.QAReview.UpdatedAt = now
	o.Status = StatusQAPending
	o.touch(operator, now)
	return nil
}

func (o *Order) requireQA(user id.UserID) error {
	if o.Status != StatusQAPending {
		return invalidState(o, "handled by qa")
	}
	if o.QAUserID() != user {
		return dErrors.New(dErrors.CodeForbidden, "order is not assigned to you")
	}
	return nil
}

// MarkSample tags a pending QA order with a sample batch.
func (o *Order) MarkSample(user id.UserID, bulkID string, now time.Time) error {
	if err := o.requireQA(user); err != nil {
		return err
	}
	o.QAReview.BulkID = bulkID
	o.QAReview.OperatorID = user
	o.QAReview.UpdatedAt = now
	o.touch(user, now)
	return nil
}

// PassQA accepts the order. The caller publishes the second review result.
func (o *Order) PassQA(user id.UserID, now time.Time) error {
	if err := o.requireQA(user); err != nil {
		return err
	}
	if o.SecondReview == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "order has no second review")
	}
	o.QAReview.Status = ReviewSuccess
	o.QAReview.OperatorID = user
	o.QAReview.UpdatedAt = now
	o.Status = StatusQASuccess
	o.touch(user, now)
	return nil
}

// ReturnToSecond sends a QA order back to its second reviewer, or shuffles
// it into the second-pass pool once the returned count passes maxReturned.
func (o *Order) ReturnToSecond(user id.UserID, remark string, maxReturned int, now time.Time) (*Shuffle, error) {
	if err := o.requireQA(user); err != nil {
		return nil, err
	}
	if o.SecondReview == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "order has no second review")
	}
	o.SecondReview.Status = ReviewReturned
	o.SecondReview.OperatorID = user
	o.SecondReview.UpdatedAt = now
	o.Status = StatusQAReturned
	o.ReturnedRemark = remark
	o.ReturnedCount++
	o.touch(user, now)

	if o.ReturnedCount <= maxReturned {
		return nil, nil
	}
	shuffle := &Shuffle{Penalized: o.SecondReview.AssigneeID, Trigger: StageQA}
	o.SecondReview.unassign(user, now)
	o.QAReview.Status = ReviewUnaudit
	o.QAReview.OperatorID = user
	o.QAReview.UpdatedAt = now
	o.ReturnedCount = 0
	o.ReturnedRemark = ""
	o.Status = StatusSecondUnassigned
	return shuffle, nil
}

// WorkingCopy is the review a worker edits in the detail view. An empty pass
// is prefilled from the previous one so the worker starts from its result.
func (o *Order) WorkingCopy() *Review {
	current := o.CurrentReview().Clone()
	if current == nil {
		return nil
	}
	var previous *Review
	if o.Stage() == StageSecond {
		previous = o.FirstReview
	}
	if !current.HasContent() && previous.HasContent() {
		res := previous.Result()
		current.ContentText = res.ContentText
		current.ArticleTitle = res.ArticleTitle
		current.ArticlePage = res.ArticlePage
		current.ArticleAuthorID = res.AuthorID
		current.WritingMode = res.WritingMode
	}
	return current
}

func invalidState(o *Order, action string) error {
	return dErrors.New(dErrors.CodeInvalidState,
		fmt.Sprintf("order %s in status %s cannot be %s", o.SerialID, o.Status, action))
}

// TimeRange bounds a timestamp filter; zero ends are open.
type TimeRange = contentmodels.TimeRange

// OrderFilter selects orders for listings. Zero fields match everything.
type OrderFilter struct {
	Statuses   []OrderStatus
	AssigneeID id.UserID
	QAUserID   id.UserID
	BookID     id.BookID
	BulkID     string
	SerialID   string
	Created    TimeRange
}

func (f OrderFilter) Matches(o *Order) bool {
	if len(f.Statuses) > 0 && !o.Status.In(f.Statuses...) {
		return false
	}
	if !f.AssigneeID.IsNil() && o.FirstUserID() != f.AssigneeID && o.SecondUserID() != f.AssigneeID {
		return false
	}
	if !f.QAUserID.IsNil() && o.QAUserID() != f.QAUserID {
		return false
	}
	if !f.BookID.IsNil() && o.BookID != f.BookID {
		return false
	}
	if f.BulkID != "" && o.BulkID() != f.BulkID {
		return false
	}
	if f.SerialID != "" && !strings.Contains(o.SerialID, f.SerialID) {
		return false
	}
	return f.Created.Contains(o.CreatedAt)
}

// BookQAStat summarizes a book whose orders have all reached QA.
type BookQAStat struct {
	BookID     id.BookID
	Total      int
	Unassigned int
	Pending    int
}
