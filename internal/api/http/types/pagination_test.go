package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationWindow(t *testing.T) {
	tests := []struct {
		name       string
		req        PaginationRequest
		total      int
		start, end int
	}{
		{"默认值", PaginationRequest{}, 50, 0, 20},
		{"末页不足一页", PaginationRequest{Page: 3, PageSize: 2}, 5, 4, 5},
		{"刚好越过末页", PaginationRequest{Page: 4, PageSize: 2}, 5, 5, 5},
		{"页大小上限", PaginationRequest{Page: 1, PageSize: 1000}, 500, 0, 100},
		{"最大页码不溢出", PaginationRequest{Page: math.MaxInt, PageSize: 100}, 3, 3, 3},
		{"乘法溢出为负数", PaginationRequest{Page: math.MaxInt/100 + 2, PageSize: 100}, 3, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			start, end := req.Window(tt.total)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
			assert.GreaterOrEqual(t, start, 0)
			assert.LessOrEqual(t, start, end)
		})
	}

	t.Run("未规范化的请求", func(t *testing.T) {
		req := PaginationRequest{Page: math.MaxInt, PageSize: 100}
		start, end := req.Window(3)
		assert.Equal(t, 3, start)
		assert.Equal(t, 3, end)
	})
}

func TestNormalizeClampsPage(t *testing.T) {
	req := PaginationRequest{Page: math.MaxInt, PageSize: 0}
	req.Normalize()
	assert.Equal(t, maxPage, req.Page)
	assert.Equal(t, defaultPageSize, req.PageSize)
}
