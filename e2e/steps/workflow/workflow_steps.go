package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the workflow steps use.
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	DELETE(path string) error
	Upload(path string, fields map[string]string, fileField, fileName string, content []byte) error
	StatusCode() int
	Body() []byte
	GetResponseField(field string) (any, error)
	Save(key, value string)
	Saved(key string) (string, error)
	Unique(name string) string
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &workflowSteps{tc: tc}

	ctx.Step(`^a book "([^"]*)" by "([^"]*)"$`, steps.bookByAuthor)
	ctx.Step(`^I upload page (\d+) of "([^"]*)" reading "([^"]*)"$`, steps.uploadPage)
	ctx.Step(`^I upload a text file as page (\d+) of "([^"]*)"$`, steps.uploadNonImage)
	ctx.Step(`^I apply for a proofreading order$`, steps.apply)
	ctx.Step(`^I submit the order with text "([^"]*)"$`, steps.submit)
	ctx.Step(`^I suspend the order with text "([^"]*)"$`, steps.suspend)
	ctx.Step(`^I return the order with remark "([^"]*)"$`, steps.returnOrder)
	ctx.Step(`^I open the order$`, steps.open)
	ctx.Step(`^I open the order history$`, steps.history)
	ctx.Step(`^I delete the order$`, steps.deleteOrder)

	ctx.Step(`^I apply for QA on "([^"]*)"$`, steps.applyQA)
	ctx.Step(`^I sample (\d+) percent of "([^"]*)" for QA$`, steps.sample)
	ctx.Step(`^I pass QA on "([^"]*)"$`, steps.submitQA)
	ctx.Step(`^I reject the order in QA with remark "([^"]*)"$`, steps.returnQA)

	ctx.Step(`^I save the order$`, steps.saveOrder)
	ctx.Step(`^the order status should be "([^"]*)"$`, steps.orderStatusShouldBe)
}

type workflowSteps struct {
	tc TestContext
}

func (s *workflowSteps) expect(status int, what string) error {
	if s.tc.StatusCode() != status {
		return fmt.Errorf("%s: expected status %d, got %d: %s", what, status, s.tc.StatusCode(), s.tc.Body())
	}
	return nil
}

func (s *workflowSteps) field(name string) (string, error) {
	v, err := s.tc.GetResponseField(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (s *workflowSteps) bookByAuthor(ctx context.Context, book, author string) error {
	if err := s.tc.POST("/api/content/authors", map[string]any{"name": s.tc.Unique(author)}); err != nil {
		return err
	}
	if err := s.expect(201, "create author"); err != nil {
		return err
	}
	authorID, err := s.field("id")
	if err != nil {
		return err
	}
	s.tc.Save("author:"+author, authorID)

	if err := s.tc.POST("/api/content/books", map[string]any{
		"name":       s.tc.Unique(book),
		"snum":       s.tc.Unique("snum"),
		"pages":      100,
		"author_ids": []string{authorID},
	}); err != nil {
		return err
	}
	if err := s.expect(201, "create book"); err != nil {
		return err
	}
	bookID, err := s.field("id")
	if err != nil {
		return err
	}
	s.tc.Save("book:"+book, bookID)
	s.tc.Save("author_of:"+book, authorID)
	return nil
}

func (s *workflowSteps) pageFields(page int, book, text string) (map[string]string, error) {
	bookID, err := s.tc.Saved("book:" + book)
	if err != nil {
		return nil, err
	}
	authorID, err := s.tc.Saved("author_of:" + book)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"book_id":             bookID,
		"author_id":           authorID,
		"book_page":           strconv.Itoa(page),
		"article_page":        "1",
		"title":               fmt.Sprintf("%s p.%d", book, page),
		"writing_mode_origin": "vertical",
		"writing_mode":        "horizontal",
		"content_text":        text,
	}, nil
}

func (s *workflowSteps) uploadPage(ctx context.Context, page int, book, text string) error {
	fields, err := s.pageFields(page, book, text)
	if err != nil {
		return err
	}
	image := append(append([]byte{}, pngHeader...), fmt.Sprintf("page-%d", page)...)
	return s.tc.Upload("/api/orders/init", fields, "content_image", fmt.Sprintf("page-%d.png", page), image)
}

func (s *workflowSteps) uploadNonImage(ctx context.Context, page int, book string) error {
	fields, err := s.pageFields(page, book, "")
	if err != nil {
		return err
	}
	return s.tc.Upload("/api/orders/init", fields, "content_image", "page.png", []byte("plain text, not an image"))
}

func (s *workflowSteps) orderPath(suffix string) (string, error) {
	orderID, err := s.tc.Saved("order")
	if err != nil {
		return "", err
	}
	return "/api/orders/" + orderID + suffix, nil
}

func (s *workflowSteps) saveOrder(ctx context.Context) error {
	orderID, err := s.field("id")
	if err != nil {
		return err
	}
	s.tc.Save("order", orderID)
	return nil
}

func (s *workflowSteps) apply(ctx context.Context) error {
	return s.tc.POST("/api/orders/apply", map[string]any{})
}

func (s *workflowSteps) result(text string) map[string]any {
	return map[string]any{
		"content_text":  text,
		"article_title": "Preface",
		"article_page":  1,
		"writing_mode":  "horizontal",
	}
}

func (s *workflowSteps) submit(ctx context.Context, text string) error {
	path, err := s.orderPath("/submit")
	if err != nil {
		return err
	}
	return s.tc.POST(path, s.result(text))
}

func (s *workflowSteps) suspend(ctx context.Context, text string) error {
	path, err := s.orderPath("/suspend")
	if err != nil {
		return err
	}
	return s.tc.POST(path, s.result(text))
}

func (s *workflowSteps) returnOrder(ctx context.Context, remark string) error {
	orderID, err := s.tc.Saved("order")
	if err != nil {
		return err
	}
	return s.tc.POST("/api/orders/return", map[string]any{"order_id": orderID, "returned_remark": remark})
}

func (s *workflowSteps) open(ctx context.Context) error {
	path, err := s.orderPath("")
	if err != nil {
		return err
	}
	return s.tc.GET(path, nil)
}

func (s *workflowSteps) history(ctx context.Context) error {
	path, err := s.orderPath("/history")
	if err != nil {
		return err
	}
	return s.tc.GET(path, nil)
}

func (s *workflowSteps) deleteOrder(ctx context.Context) error {
	path, err := s.orderPath("")
	if err != nil {
		return err
	}
	return s.tc.DELETE(path)
}

func (s *workflowSteps) applyQA(ctx context.Context, book string) error {
	bookID, err := s.tc.Saved("book:" + book)
	if err != nil {
		return err
	}
	return s.tc.POST("/api/qa/apply", map[string]any{"book": bookID})
}

func (s *workflowSteps) sample(ctx context.Context, ratio int, book string) error {
	bookID, err := s.tc.Saved("book:" + book)
	if err != nil {
		return err
	}
	return s.tc.POST("/api/qa/sample", map[string]any{"book": bookID, "qa_ratio": ratio})
}

func (s *workflowSteps) submitQA(ctx context.Context, book string) error {
	bookID, err := s.tc.Saved("book:" + book)
	if err != nil {
		return err
	}
	return s.tc.POST("/api/qa/submit", map[string]any{"book": bookID})
}

func (s *workflowSteps) returnQA(ctx context.Context, remark string) error {
	orderID, err := s.tc.Saved("order")
	if err != nil {
		return err
	}
	return s.tc.POST("/api/qa/return", map[string]any{
		"returned_orders": []string{orderID},
		"returned_remark": remark,
	})
}

func (s *workflowSteps) orderStatusShouldBe(ctx context.Context, want string) error {
	got, err := s.field("order_status")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected order_status %s, got %s", want, got)
	}
	return nil
}
