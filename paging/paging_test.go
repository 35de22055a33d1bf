package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name    string
		params  Params
		want    []int
		page    int
		hasMore bool
	}{
		{"first page", Params{Page: 1, Size: 2}, []int{1, 2}, 1, true},
		{"last partial page", Params{Page: 3, Size: 2}, []int{5}, 3, false},
		{"past the end", Params{Page: 9, Size: 2}, []int{}, 9, false},
		{"defaults", Params{}, []int{1, 2, 3, 4, 5}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Paginate(items, tt.params)
			assert.Equal(t, tt.want, res.Items)
			assert.Equal(t, tt.page, res.Page)
			assert.Equal(t, 5, res.Total)
			assert.Equal(t, tt.hasMore, res.HasMore)
		})
	}
}

func TestPaginateCopies(t *testing.T) {
	items := []string{"a", "b"}
	res := Paginate(items, Params{Page: 1, Size: 1})
	res.Items[0] = "z"
	assert.Equal(t, "a", items[0])
}

func TestNormalizeParams(t *testing.T) {
	assert.Equal(t, Params{Page: 1, Size: DefaultSize}, NormalizeParams(Params{Page: -3}))
	assert.Equal(t, MaxSize, NormalizeParams(Params{Size: 5000}).Size)
}
