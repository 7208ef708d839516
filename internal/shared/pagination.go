package shared

// DefaultPerPage applies when a listing does not ask for a page size.
const DefaultPerPage = 20

// Pagination describes where a listing page sits within the full result.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination clamps page and perPage and derives TotalPages from total.
// An empty result still has one page.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if total < 0 {
		total = 0
	}
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// Prev returns the previous page number, never below 1.
func (p Pagination) Prev() int {
	if p.Page <= 1 {
		return 1
	}
	return p.Page - 1
}

// Next returns the following page number, never beyond TotalPages.
func (p Pagination) Next() int {
	if p.Page >= p.TotalPages {
		return p.TotalPages
	}
	return p.Page + 1
}

// Offset is the row offset of the first item on the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
