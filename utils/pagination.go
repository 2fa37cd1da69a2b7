package utils

import "strconv"

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Pagination describes one page of a list response.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	Limit       int   `json:"limit"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

// ParsePageQuery parses page/limit query values, falling back to page 1 and
// the default limit on anything missing, malformed or out of range.
func ParsePageQuery(pageStr, limitStr string) (page, limit int) {
	page = 1
	limit = defaultPageSize
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxPageSize {
		limit = l
	}
	return page, limit
}

// Paginate computes page metadata for a collection of total items.
func Paginate(page, limit int, total int64) Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
		Limit:       limit,
		HasNext:     int64(page)*int64(limit) < total,
		HasPrev:     page > 1,
	}
}

// Offset returns the row offset for the page.
func Offset(page, limit int) int {
	return (page - 1) * limit
}
