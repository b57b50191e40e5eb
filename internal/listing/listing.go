// Package listing does the client-side part of every admin table: free-text
// search, field filters, sorting and pagination over a fetched collection.
package listing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/consultadmin/consultadmin/internal/cli/client"
)

const DefaultPageSize = 10

// Query selects and orders a page of records
type Query struct {
	Search  string
	Filters map[string]string
	SortBy  string
	Desc    bool
	// Page is 1-based; values below 1 mean the first page
	Page     int
	PageSize int
}

// Page is one page of results
type Page struct {
	Records    []client.Record
	Total      int // records matching search and filters
	Page       int
	PageSize   int
	TotalPages int
}

// ParseFilters turns "field=value" pairs into a filter map
func ParseFilters(pairs []string) (map[string]string, error) {
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field=value", pair)
		}
		filters[field] = strings.TrimSpace(value)
	}
	return filters, nil
}

// Apply filters, sorts and paginates records. searchable names the fields
// free-text search looks at. The input slice is not modified.
func Apply(records []client.Record, searchable []string, q Query) Page {
	matched := make([]client.Record, 0, len(records))
	for _, rec := range records {
		if matchesFilters(rec, q.Filters) && matchesSearch(rec, searchable, q.Search) {
			matched = append(matched, rec)
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][q.SortBy], matched[j][q.SortBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	result := Page{
		Total:      len(matched),
		Page:       page,
		PageSize:   size,
		TotalPages: (len(matched) + size - 1) / size,
		Records:    []client.Record{},
	}

	start := (page - 1) * size
	if start >= len(matched) {
		return result
	}
	end := min(start+size, len(matched))
	result.Records = matched[start:end]
	return result
}

func matchesFilters(rec client.Record, filters map[string]string) bool {
	for field, want := range filters {
		if !strings.EqualFold(stringify(rec[field]), want) {
			return false
		}
	}
	return true
}

func matchesSearch(rec client.Record, fields []string, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(stringify(rec[field])), term) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// compare orders numbers numerically and everything else as
// case-insensitive text. Missing values sort first.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(strings.ToLower(stringify(a)), strings.ToLower(stringify(b)))
}
