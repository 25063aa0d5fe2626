// Package paging normalizes page/size query parameters for list endpoints.
package paging

import (
	"net/http"
	"strconv"
)

const (
	DefaultSize = 20
	MaxSize     = 200
)

// Page is a one-based page request.
type Page struct {
	Number int
	Size   int
}

// New clamps number and size into a usable page.
func New(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Page{Number: number, Size: size}
}

// FromRequest reads the page and page_size query parameters.
func FromRequest(r *http.Request) Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return New(number, size)
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Slice returns the window of items covered by p.
func Slice[T any](items []T, p Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+p.Size, len(items))
	return items[start:end]
}

// Result is one page of items plus the total count across all pages.
type Result[T any] struct {
	Items []T `json:"results"`
	Total int `json:"count"`
	Page  int `json:"page"`
	Size  int `json:"page_size"`
}

func NewResult[T any](items []T, total int, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, Page: p.Number, Size: p.Size}
}
