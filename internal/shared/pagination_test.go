package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	cases := []struct {
		name                 string
		limit, offset, total int
		want                 Pagination
	}{
		{"first page", 20, 0, 45, Pagination{Limit: 20, Offset: 0, Total: 45, Page: 1, TotalPages: 3, HasMore: true, NextOffset: 20}},
		{"last page", 20, 40, 45, Pagination{Limit: 20, Offset: 40, Total: 45, Page: 3, TotalPages: 3}},
		{"empty", 20, 0, 0, Pagination{Limit: 20, Total: 0, Page: 1, TotalPages: 0}},
		{"defaults", 0, -5, 10, Pagination{Limit: 50, Offset: 0, Total: 10, Page: 1, TotalPages: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewPagination(tc.limit, tc.offset, tc.total))
		})
	}
}
