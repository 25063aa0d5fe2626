// Package models defines the catalogued content: authors, books and the
// articles (scanned pages) that flow through review.
package models

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

type ArticleStatus string

const (
	ArticleStatusUnaudit  ArticleStatus = "unaudit"
	ArticleStatusAuditing ArticleStatus = "auditing"
	ArticleStatusRelease  ArticleStatus = "release"
	ArticleStatusForbid   ArticleStatus = "forbid"
)

func (s ArticleStatus) IsValid() bool {
	switch s {
	case ArticleStatusUnaudit, ArticleStatusAuditing, ArticleStatusRelease, ArticleStatusForbid:
		return true
	}
	return false
}

// WritingMode is the print direction of a page.
type WritingMode string

const (
	WritingModeHorizontal WritingMode = "horizontal"
	WritingModeVertical   WritingMode = "vertical"
)

func (m WritingMode) IsValid() bool {
	return m == WritingModeHorizontal || m == WritingModeVertical
}

const (
	MaxNameLength   = 50
	MaxTitleLength  = 200
	MaxDetailLength = 3000
	MaxBookPages    = 3000
)

type Author struct {
	ID            id.AuthorID `json:"id"`
	Name          string      `json:"name"`
	Detail        string      `json:"detail"`
	Dynasty       string      `json:"dynasty"`
	WritingSchool string      `json:"writing_school"`
	OperatorID    id.UserID   `json:"operator_id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (a *Author) Validate() error {
	a.Name = strings.TrimSpace(a.Name)
	switch {
	case a.Name == "":
		return dErrors.New(dErrors.CodeValidation, "author name is required")
	case utf8.RuneCountInString(a.Name) > MaxNameLength:
		return dErrors.New(dErrors.CodeValidation, "author name is too long")
	case utf8.RuneCountInString(a.Detail) > MaxDetailLength:
		return dErrors.New(dErrors.CodeValidation, "author detail is too long")
	case utf8.RuneCountInString(a.Dynasty) > MaxNameLength, utf8.RuneCountInString(a.WritingSchool) > MaxNameLength:
		return dErrors.New(dErrors.CodeValidation, "author dynasty or school is too long")
	}
	return nil
}

func (a *Author) Clone() *Author {
	c := *a
	return &c
}

type Book struct {
	ID         id.BookID     `json:"id"`
	Snum       string        `json:"snum"`
	Name       string        `json:"name"`
	Detail     string        `json:"detail"`
	Dynasty    string        `json:"dynasty"`
	Genre      string        `json:"genre"`
	Pages      int           `json:"pages"`
	AuthorIDs  []id.AuthorID `json:"author_ids"`
	OperatorID id.UserID     `json:"operator_id"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (b *Book) Validate() error {
	b.Name = strings.TrimSpace(b.Name)
	switch {
	case b.Name == "":
		return dErrors.New(dErrors.CodeValidation, "book name is required")
	case utf8.RuneCountInString(b.Name) > MaxTitleLength, utf8.RuneCountInString(b.Snum) > MaxTitleLength:
		return dErrors.New(dErrors.CodeValidation, "book name or number is too long")
	case utf8.RuneCountInString(b.Detail) > MaxDetailLength:
		return dErrors.New(dErrors.CodeValidation, "book detail is too long")
	case b.Pages < 0 || b.Pages > MaxBookPages:
		return dErrors.New(dErrors.CodeValidation, "book pages must be between 0 and 3000")
	}
	return nil
}

func (b *Book) Clone() *Book {
	c := *b
	c.AuthorIDs = slices.Clone(b.AuthorIDs)
	return &c
}

type Article struct {
	ID                id.ArticleID  `json:"id"`
	BookID            id.BookID     `json:"book_id"`
	AuthorID          id.AuthorID   `json:"author_id"`
	Snum              string        `json:"snum"`
	Title             string        `json:"title"`
	BookPage          int           `json:"book_page"`
	ArticlePage       int           `json:"article_page"`
	Status            ArticleStatus `json:"status"`
	WritingModeOrigin WritingMode   `json:"writing_mode_origin"`
	WritingMode       WritingMode   `json:"writing_mode"`
	ContentImage      string        `json:"content_image"`
	ContentText       string        `json:"content_text"`
	OperatorID        id.UserID     `json:"operator_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (a *Article) Validate() error {
	switch {
	case utf8.RuneCountInString(a.Title) > MaxTitleLength, utf8.RuneCountInString(a.Snum) > MaxTitleLength:
		return dErrors.New(dErrors.CodeValidation, "article title or number is too long")
	case a.BookPage < 0 || a.ArticlePage < 0:
		return dErrors.New(dErrors.CodeValidation, "page must not be negative")
	case !a.Status.IsValid():
		return dErrors.New(dErrors.CodeValidation, "invalid article status")
	case a.WritingModeOrigin != "" && !a.WritingModeOrigin.IsValid(),
		a.WritingMode != "" && !a.WritingMode.IsValid():
		return dErrors.New(dErrors.CodeValidation, "writing mode must be horizontal or vertical")
	}
	return nil
}

func (a *Article) Clone() *Article {
	c := *a
	return &c
}

// PublishResult is the reviewed content that replaces an article's OCR text
// once QA accepts it.
type PublishResult struct {
	Title       string
	Page        int
	AuthorID    id.AuthorID
	WritingMode WritingMode
	ContentText string
}

// ApplyPublish overwrites the article with reviewed content and releases it.
func (a *Article) ApplyPublish(result PublishResult, operator id.UserID, now time.Time) {
	a.Title = result.Title
	a.ArticlePage = result.Page
	if !result.AuthorID.IsNil() {
		a.AuthorID = result.AuthorID
	}
	a.WritingMode = result.WritingMode
	a.ContentText = result.ContentText
	a.Status = ArticleStatusRelease
	a.OperatorID = operator
	a.UpdatedAt = now
}

type AuthorFilter struct {
	Search string
}

// Matches reports whether name, dynasty or school contains the search term.
func (f AuthorFilter) Matches(a *Author) bool {
	return containsFold(f.Search, a.Name, a.Dynasty, a.WritingSchool)
}

type BookFilter struct {
	Search string
}

func (f BookFilter) Matches(b *Book) bool {
	return containsFold(f.Search, b.Snum, b.Name)
}

// TimeRange is inclusive; zero bounds are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

type ArticleFilter struct {
	Search     string
	Statuses   []ArticleStatus
	BookID     id.BookID
	OperatorID id.UserID
	Created    TimeRange
	Updated    TimeRange
}

func (f ArticleFilter) Matches(a *Article) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if !f.BookID.IsNil() && a.BookID != f.BookID {
		return false
	}
	if !f.OperatorID.IsNil() && a.OperatorID != f.OperatorID {
		return false
	}
	if !f.Created.Contains(a.CreatedAt) || !f.Updated.Contains(a.UpdatedAt) {
		return false
	}
	return containsFold(f.Search, a.Title, a.Snum, a.ContentText)
}

func containsFold(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
