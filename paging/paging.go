// Package paging slices ordered lists into numbered pages.
package paging

const (
	// DefaultSize applies when no page size is configured.
	DefaultSize = 20
	// MaxSize caps the page size.
	MaxSize = 100
)

// Params holds the page request
type Params struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Result holds one page
type Result[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// NormalizeParams clamps Page to at least 1 and Size to (0, MaxSize]
func NormalizeParams(params Params) Params {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = DefaultSize
	}
	if params.Size > MaxSize {
		params.Size = MaxSize
	}
	return params
}

// Paginate returns the requested page of items. The page holds a copy, so
// callers may modify it freely. Pages past the end are empty, never nil.
func Paginate[T any](items []T, params Params) *Result[T] {
	params = NormalizeParams(params)
	from := min((params.Page-1)*params.Size, len(items))
	to := min(from+params.Size, len(items))

	page := make([]T, 0, to-from)
	page = append(page, items[from:to]...)

	return &Result[T]{
		Items:   page,
		Page:    params.Page,
		Size:    params.Size,
		Total:   len(items),
		HasMore: to < len(items),
	}
}
