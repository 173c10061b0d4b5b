package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

const (
	defaultQueryLimit = 50
	defaultQuerySort  = "-createdAt"
)

// queryReservedKeys are control parameters, never document filters.
var queryReservedKeys = map[string]struct{}{
	"page":    {},
	"sort":    {},
	"limit":   {},
	"fields":  {},
	"keyword": {},
}

// Pagination describes the window a query result covers.
type Pagination struct {
	CurrentPage   int `json:"currentPage"`
	Limit         int `json:"limit"`
	NumberOfPages int `json:"numberOfPages"`
	Next          int `json:"next,omitempty"`
	Prev          int `json:"prev,omitempty"`
}

// QueryResult is a page of projected documents plus its pagination envelope.
type QueryResult struct {
	Items      []map[string]any `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// Query interprets list-endpoint URL parameters: equality and gte/gt/lte/lt
// filters on document fields, keyword search, field projection, sorting and
// pagination. Unknown filter fields match nothing; unknown control values
// fall back to defaults rather than erroring.
type Query struct {
	values url.Values
}

func NewQuery(values url.Values) *Query {
	if values == nil {
		values = url.Values{}
	}
	return &Query{values: values}
}

// Apply runs the full pipeline over docs, which must marshal to a JSON array
// of objects. searchFields name the string fields the keyword parameter
// matches against.
func (q *Query) Apply(docs any, searchFields ...string) (QueryResult, error) {
	items, err := toDocuments(docs)
	if err != nil {
		return QueryResult{}, err
	}

	items = q.filter(items)
	items = q.search(items, searchFields)
	q.sortDocuments(items)
	items = q.project(items)
	return q.paginate(items), nil
}

func toDocuments(docs any) ([]map[string]any, error) {
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	if items == nil {
		items = []map[string]any{}
	}
	return items, nil
}

type fieldFilter struct {
	field    string
	operator string
	value    string
}

func (q *Query) filters() []fieldFilter {
	filters := make([]fieldFilter, 0)
	keys := make([]string, 0, len(q.values))
	for key := range q.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field, operator := parseFilterKey(key)
		if _, reserved := queryReservedKeys[field]; reserved {
			continue
		}
		for _, value := range q.values[key] {
			filters = append(filters, fieldFilter{field: field, operator: operator, value: value})
		}
	}
	return filters
}

// parseFilterKey splits "age[gte]" into the field and operator. A bare key
// means equality.
func parseFilterKey(key string) (string, string) {
	open := strings.Index(key, "[")
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return key, "eq"
	}
	field := key[:open]
	operator := key[open+1 : len(key)-1]
	switch operator {
	case "gte", "gt", "lte", "lt":
		return field, operator
	default:
		return key, "eq"
	}
}

func (q *Query) filter(items []map[string]any) []map[string]any {
	filters := q.filters()
	if len(filters) == 0 {
		return items
	}
	matched := make([]map[string]any, 0, len(items))
	for _, item := range items {
		keep := true
		for _, filter := range filters {
			if !matchesFilter(item, filter) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, item)
		}
	}
	return matched
}

func matchesFilter(item map[string]any, filter fieldFilter) bool {
	value, ok := item[filter.field]
	if !ok {
		return false
	}
	switch filter.operator {
	case "eq":
		return fmt.Sprintf("%v", value) == filter.value
	default:
		cmp, ok := compareValues(value, filter.value)
		if !ok {
			return false
		}
		switch filter.operator {
		case "gte":
			return cmp >= 0
		case "gt":
			return cmp > 0
		case "lte":
			return cmp <= 0
		case "lt":
			return cmp < 0
		}
		return false
	}
}

// compareValues compares a document value against a raw query string,
// numerically when both sides parse as numbers and lexically otherwise.
func compareValues(docValue any, queryValue string) (int, bool) {
	switch v := docValue.(type) {
	case float64:
		n, err := strconv.ParseFloat(queryValue, 64)
		if err != nil {
			return 0, false
		}
		switch {
		case v < n:
			return -1, true
		case v > n:
			return 1, true
		default:
			return 0, true
		}
	case string:
		return strings.Compare(v, queryValue), true
	default:
		return 0, false
	}
}

func (q *Query) search(items []map[string]any, searchFields []string) []map[string]any {
	keyword := strings.TrimSpace(q.values.Get("keyword"))
	if keyword == "" || len(searchFields) == 0 {
		return items
	}
	fold := cases.Fold()
	needle := fold.String(keyword)
	matched := make([]map[string]any, 0, len(items))
	for _, item := range items {
		for _, field := range searchFields {
			text, ok := item[field].(string)
			if !ok {
				continue
			}
			if strings.Contains(fold.String(text), needle) {
				matched = append(matched, item)
				break
			}
		}
	}
	return matched
}

func (q *Query) sortDocuments(items []map[string]any) {
	spec := strings.TrimSpace(q.values.Get("sort"))
	if spec == "" {
		spec = defaultQuerySort
	}
	type sortKey struct {
		field string
		desc  bool
	}
	keys := make([]sortKey, 0)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		keys = append(keys, sortKey{field: strings.TrimPrefix(part, "-"), desc: desc})
	}
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareDocumentValues(items[i][key.field], items[j][key.field])
			if cmp == 0 {
				continue
			}
			if key.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareDocumentValues(a, b any) int {
	left, leftOK := a.(float64)
	right, rightOK := b.(float64)
	if leftOK && rightOK {
		switch {
		case left < right:
			return -1
		case left > right:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// project keeps only the requested fields. The password hash never survives
// projection, requested or not.
func (q *Query) project(items []map[string]any) []map[string]any {
	spec := strings.TrimSpace(q.values.Get("fields"))
	var keep map[string]struct{}
	if spec != "" {
		keep = make(map[string]struct{})
		for _, field := range strings.Split(spec, ",") {
			field = strings.TrimSpace(field)
			if field == "" || field == "passwordHash" {
				continue
			}
			keep[field] = struct{}{}
		}
	}
	for _, item := range items {
		delete(item, "passwordHash")
		if keep == nil {
			continue
		}
		for field := range item {
			if _, ok := keep[field]; !ok {
				delete(item, field)
			}
		}
	}
	return items
}

func (q *Query) paginate(items []map[string]any) QueryResult {
	page := positiveIntOrDefault(q.values.Get("page"), 1)
	limit := positiveIntOrDefault(q.values.Get("limit"), defaultQueryLimit)

	total := len(items)
	numberOfPages := (total + limit - 1) / limit

	pagination := Pagination{
		CurrentPage:   page,
		Limit:         limit,
		NumberOfPages: numberOfPages,
	}
	if page > 1 {
		pagination.Prev = page - 1
	}
	if page < numberOfPages {
		pagination.Next = page + 1
	}

	start := (page - 1) * limit
	if start >= total {
		return QueryResult{Items: []map[string]any{}, Pagination: pagination}
	}
	end := start + limit
	if end > total {
		end = total
	}
	return QueryResult{Items: items[start:end], Pagination: pagination}
}

func positiveIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
