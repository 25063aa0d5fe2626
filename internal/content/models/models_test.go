package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
)

func TestBookValidate(t *testing.T) {
	b := &Book{Name: "  Shiji  ", Pages: 3000}
	require.NoError(t, b.Validate())
	assert.Equal(t, "Shiji", b.Name)

	b.Pages = 3001
	assert.True(t, dErrors.HasCode(b.Validate(), dErrors.CodeValidation))

	b.Pages = -1
	assert.Error(t, b.Validate())

	assert.Error(t, (&Book{Name: " "}).Validate())
}

func TestArticleValidate(t *testing.T) {
	a := &Article{Status: ArticleStatusUnaudit, WritingModeOrigin: WritingModeVertical}
	require.NoError(t, a.Validate())

	a.WritingMode = "diagonal"
	assert.Error(t, a.Validate())

	a.WritingMode = ""
	a.BookPage = -3
	assert.Error(t, a.Validate())

	assert.Error(t, (&Article{Status: "draft"}).Validate())
}

func TestApplyPublish(t *testing.T) {
	author := id.AuthorID(uuid.New())
	operator := id.UserID(uuid.New())
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a := &Article{Title: "ocr title", ContentText: "ocr", Status: ArticleStatusAuditing, AuthorID: author}

	a.ApplyPublish(PublishResult{Title: "reviewed", Page: 12, WritingMode: WritingModeHorizontal, ContentText: "clean"}, operator, now)

	assert.Equal(t, ArticleStatusRelease, a.Status)
	assert.Equal(t, "reviewed", a.Title)
	assert.Equal(t, 12, a.ArticlePage)
	assert.Equal(t, author, a.AuthorID, "empty author keeps the existing one")
	assert.Equal(t, "clean", a.ContentText)
	assert.Equal(t, operator, a.OperatorID)
	assert.Equal(t, now, a.UpdatedAt)
}

func TestArticleFilter(t *testing.T) {
	book := id.BookID(uuid.New())
	created := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	a := &Article{BookID: book, Title: "Preface", ContentText: "Spring and Autumn", Status: ArticleStatusRelease, CreatedAt: created, UpdatedAt: created}

	assert.True(t, ArticleFilter{}.Matches(a))
	assert.True(t, ArticleFilter{Search: "autumn"}.Matches(a))
	assert.False(t, ArticleFilter{Search: "winter"}.Matches(a))
	assert.True(t, ArticleFilter{Statuses: []ArticleStatus{ArticleStatusUnaudit, ArticleStatusRelease}}.Matches(a))
	assert.False(t, ArticleFilter{Statuses: []ArticleStatus{ArticleStatusForbid}}.Matches(a))
	assert.False(t, ArticleFilter{BookID: id.BookID(uuid.New())}.Matches(a))
	assert.True(t, ArticleFilter{Created: TimeRange{From: created, To: created}}.Matches(a))
	assert.False(t, ArticleFilter{Created: TimeRange{From: created.Add(time.Second)}}.Matches(a))
}
