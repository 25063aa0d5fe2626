package paging

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClamps(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Size: DefaultSize}, New(0, 0))
	assert.Equal(t, Page{Number: 3, Size: MaxSize}, New(3, 10_000))
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/orders?page=2&page_size=5", nil)
	p := FromRequest(r)
	assert.Equal(t, 2, p.Number)
	assert.Equal(t, 5, p.Offset())
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Slice(items, New(2, 2)))
	assert.Equal(t, []int{5}, Slice(items, New(3, 2)))
	assert.Empty(t, Slice(items, New(4, 2)))
}
