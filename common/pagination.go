package common

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListParams carries the generic listing knobs shared by every endpoint.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	Ordering string
}

func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is the listing envelope.
type Page[T any] struct {
	Count    int64 `json:"count"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Results  []T   `json:"results"`
}

func NewPage[T any](p ListParams, count int64, results []T) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{Count: count, Page: p.Page, PageSize: p.PageSize, Results: results}
}

// ParseListParams reads page, page_size, search and ordering from the query
// string. Out of range values fall back to defaults.
func ParseListParams(c *gin.Context) ListParams {
	p := ListParams{
		Page:     1,
		PageSize: DefaultPageSize,
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: strings.TrimSpace(c.Query("ordering")),
	}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil && n > 0 {
		p.PageSize = min(n, MaxPageSize)
	}
	return p
}

// OrderClause resolves an ordering parameter ("views", "-created_at")
// against an allow-list of columns. Unknown fields yield the fallback.
func OrderClause(ordering string, allowed []string, fallback string) string {
	if ordering == "" {
		return fallback
	}
	field, dir := ordering, "ASC"
	if strings.HasPrefix(field, "-") {
		field, dir = field[1:], "DESC"
	}
	for _, a := range allowed {
		if a == field {
			return field + " " + dir
		}
	}
	return fallback
}

// ParseID reads a positive numeric path parameter.
func ParseID(c *gin.Context, name string) (uint, error) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, NotFound("Resource")
	}
	return uint(n), nil
}
