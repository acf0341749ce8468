package shared

import (
	"math"
	"strconv"
	"strings"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	// Base is the path plus encoded filter query that page links extend.
	Base string
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// WithBase returns a copy whose links are rooted at path?query.
func (p Pagination) WithBase(path, query string) Pagination {
	p.Base = path
	if query != "" {
		p.Base += "?" + query
	}
	return p
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// PrevURL links to the previous page.
func (p Pagination) PrevURL() string { return p.Link(p.Page - 1) }

// NextURL links to the next page.
func (p Pagination) NextURL() string { return p.Link(p.Page + 1) }

// Link renders the URL of page n, keeping the filter query untouched.
func (p Pagination) Link(n int) string {
	if n <= 1 {
		if p.Base == "" {
			return "?"
		}
		return p.Base
	}
	sep := "?"
	if strings.Contains(p.Base, "?") {
		sep = "&"
	}
	return p.Base + sep + "page=" + strconv.Itoa(n)
}
