package models

// ListMeta is the pagination metadata block returned by every list endpoint.
// current_page and last_page are authoritative for clients; from/to are null
// when the page is empty.
type ListMeta struct {
	CurrentPage int  `json:"current_page"`
	LastPage    int  `json:"last_page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
	From        *int `json:"from"`
	To          *int `json:"to"`
}

// NewListMeta derives metadata from the requested page, the page size, the
// total row count and the number of rows actually returned. An out-of-range
// page keeps its requested current_page so clients never desynchronise from
// what they asked for.
func NewListMeta(page, size, total, returned int) *ListMeta {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	lastPage := (total + size - 1) / size
	if lastPage < 1 {
		lastPage = 1
	}
	meta := &ListMeta{
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     size,
		Total:       total,
	}
	if returned > 0 {
		from := (page-1)*size + 1
		to := from + returned - 1
		meta.From = &from
		meta.To = &to
	}
	return meta
}

// DefaultPageSize and MaxPageSize bound the limit query parameter.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageBounds normalises page/size the same way in every repository.
func PageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}
