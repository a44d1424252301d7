package logrecord

import (
	"math"
	"strings"
	"time"
)

// SortOrder is the direction records are returned in. Records are always
// ordered by creation time and then by id so that pages never overlap.
type SortOrder string

// Sort orders.
const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ParseSortOrder parses a case-insensitive sort order. Empty means ascending.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SortAscending):
		return SortAscending, true
	case string(SortDescending):
		return SortDescending, true
	default:
		return "", false
	}
}

// Filter is the normalized predicate used to select log records.
// Zero-valued fields place no constraint on the corresponding column.
type Filter struct {
	// Level is matched exactly, case-insensitively. Stored lower-cased.
	Level string

	// Type is matched exactly, case-insensitively. Stored lower-cased.
	Type string

	// Message is matched as a case-insensitive substring.
	Message string

	// CreatedFrom is an inclusive lower bound on the creation time.
	CreatedFrom *time.Time

	// CreatedTo is an inclusive upper bound on the creation time.
	CreatedTo *time.Time
}

// IsEmpty reports whether the filter matches every record.
func (f Filter) IsEmpty() bool {
	return f.Level == "" && f.Type == "" && f.Message == "" &&
		f.CreatedFrom == nil && f.CreatedTo == nil
}

// PageRequest selects one page of a filtered result set.
type PageRequest struct {
	Page      int
	Limit     int
	SortOrder SortOrder
}

// Skip returns the number of records preceding the page. Pages past
// MaxPage are treated as MaxPage.
func (p PageRequest) Skip() int {
	return (min(p.Page, MaxPage(p.Limit)) - 1) * p.Limit
}

// MaxPage returns the highest page whose skip plus limit still fits in an int.
func MaxPage(limit int) int {
	if limit < 1 {
		return math.MaxInt
	}
	return math.MaxInt / limit
}

// TotalPages returns ceil(totalRows / limit). Zero rows yield zero pages.
func TotalPages(totalRows int64, limit int) int64 {
	if totalRows <= 0 || limit <= 0 {
		return 0
	}
	return (totalRows + int64(limit) - 1) / int64(limit)
}
