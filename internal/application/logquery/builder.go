// Package logquery provides the application layer for querying log records:
// turning raw request parameters into a filter and executing it against the
// log store.
package logquery

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mutugading/logquery/internal/domain/logrecord"
)

// Recognized query parameters.
const (
	ParamLevel     = "level"
	ParamType      = "type"
	ParamMessage   = "message"
	ParamStartDate = "startDate"
	ParamEndDate   = "endDate"
	ParamPage      = "page"
	ParamLimit     = "limit"
	ParamSortOrder = "sortOrder"
)

// Defaults applied when the caller does not configure the builder.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const dateLayout = "2006-01-02"

var recognizedParams = []string{
	ParamLevel, ParamType, ParamMessage, ParamStartDate, ParamEndDate,
	ParamPage, ParamLimit, ParamSortOrder,
}

// Params maps a parameter name to its raw value. A missing key means the
// parameter was not supplied.
type Params map[string]string

// ParamsFromValues extracts the recognized parameters from URL query values.
// Only the first value of a repeated parameter is used.
func ParamsFromValues(values url.Values) Params {
	params := make(Params)
	for _, key := range recognizedParams {
		if vs, ok := values[key]; ok && len(vs) > 0 {
			params[key] = vs[0]
		}
	}
	return params
}

// Query is a normalized filter plus the page to fetch.
type Query struct {
	Filter logrecord.Filter
	Page   logrecord.PageRequest
}

// Builder converts raw parameters into a Query. The zero value is not
// usable; create one with NewBuilder.
type Builder struct {
	defaultLimit int
	maxLimit     int
}

// NewBuilder creates a Builder. Non-positive values fall back to
// DefaultLimit and MaxLimit.
func NewBuilder(defaultLimit, maxLimit int) Builder {
	if maxLimit < 1 {
		maxLimit = MaxLimit
	}
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return Builder{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Build normalizes params. It fails only with a *logrecord.ValidationError
// listing every malformed parameter.
func (b Builder) Build(params Params) (Query, error) {
	filter, verr := b.buildFilter(params)

	sortOrder, ok := logrecord.ParseSortOrder(params[ParamSortOrder])
	if !ok {
		verr.Add(ParamSortOrder, "must be one of asc, desc")
	}

	if verr.HasErrors() {
		return Query{}, verr
	}

	limit := b.limit(params[ParamLimit])
	page := pageNumber(params[ParamPage])
	if maxPage := logrecord.MaxPage(limit); page > maxPage {
		page = maxPage
	}

	return Query{
		Filter: filter,
		Page: logrecord.PageRequest{
			Page:      page,
			Limit:     limit,
			SortOrder: sortOrder,
		},
	}, nil
}

// BuildFilter normalizes only the filter parameters; pagination is ignored.
func (b Builder) BuildFilter(params Params) (logrecord.Filter, error) {
	filter, verr := b.buildFilter(params)
	if verr.HasErrors() {
		return logrecord.Filter{}, verr
	}
	return filter, nil
}

func (b Builder) buildFilter(params Params) (logrecord.Filter, *logrecord.ValidationError) {
	verr := &logrecord.ValidationError{}
	filter := logrecord.Filter{
		Level:   strings.ToLower(params[ParamLevel]),
		Type:    strings.ToLower(params[ParamType]),
		Message: params[ParamMessage],
	}

	if raw, ok := params[ParamStartDate]; ok && raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			verr.Add(ParamStartDate, "must be a date in YYYY-MM-DD format")
		} else {
			filter.CreatedFrom = &day
		}
	}

	if raw, ok := params[ParamEndDate]; ok && raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			verr.Add(ParamEndDate, "must be a date in YYYY-MM-DD format")
		} else {
			endOfDay := day.Add(24*time.Hour - time.Millisecond)
			filter.CreatedTo = &endOfDay
		}
	}

	return filter, verr
}

func (b Builder) limit(raw string) int {
	limit := positiveInt(raw, b.defaultLimit)
	if limit > b.maxLimit {
		return b.maxLimit
	}
	return limit
}

// pageNumber parses a page like positiveInt, except that a positive number
// too large for an int is kept as the largest int rather than reset to 1.
func pageNumber(raw string) int {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(raw, "-") {
		return math.MaxInt
	}
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// positiveInt parses raw as a base-10 integer, returning def when it is
// missing, malformed or below 1.
func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}
