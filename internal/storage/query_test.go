package storage

import (
	"net/url"
	"testing"
)

type queryDoc struct {
	Name      string `json:"name"`
	Age       int    `json:"age"`
	CreatedAt string `json:"createdAt"`
	Password  string `json:"passwordHash,omitempty"`
}

func queryFixture() []queryDoc {
	return []queryDoc{
		{Name: "alpha", Age: 20, CreatedAt: "2024-01-01T00:00:00Z", Password: "hash-a"},
		{Name: "Beta", Age: 30, CreatedAt: "2024-02-01T00:00:00Z", Password: "hash-b"},
		{Name: "gamma", Age: 40, CreatedAt: "2024-03-01T00:00:00Z", Password: "hash-c"},
		{Name: "ALPHABET", Age: 50, CreatedAt: "2024-04-01T00:00:00Z", Password: "hash-d"},
	}
}

func mustApply(t *testing.T, raw string, searchFields ...string) QueryResult {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse query %q: %v", raw, err)
	}
	result, err := NewQuery(values).Apply(queryFixture(), searchFields...)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	return result
}

func TestQueryDefaultSortIsNewestFirst(t *testing.T) {
	result := mustApply(t, "")
	if len(result.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(result.Items))
	}
	if result.Items[0]["name"] != "ALPHABET" || result.Items[3]["name"] != "alpha" {
		t.Fatalf("unexpected order: %v, %v", result.Items[0]["name"], result.Items[3]["name"])
	}
}

func TestQueryComparisonOperators(t *testing.T) {
	result := mustApply(t, "age[gte]=30&age[lt]=50")
	if len(result.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(result.Items))
	}
	for _, item := range result.Items {
		age := item["age"].(float64)
		if age < 30 || age >= 50 {
			t.Fatalf("age %v outside [30,50)", age)
		}
	}
}

func TestQueryEqualityFilter(t *testing.T) {
	result := mustApply(t, "name=gamma")
	if len(result.Items) != 1 || result.Items[0]["name"] != "gamma" {
		t.Fatalf("unexpected result: %v", result.Items)
	}
}

func TestQueryUnknownFieldMatchesNothing(t *testing.T) {
	result := mustApply(t, "nonexistent=1")
	if len(result.Items) != 0 {
		t.Fatalf("items = %d, want 0", len(result.Items))
	}
}

func TestQueryKeywordSearchFoldsCase(t *testing.T) {
	result := mustApply(t, "keyword=alpha", "name")
	if len(result.Items) != 2 {
		t.Fatalf("items = %d, want 2 (alpha and ALPHABET)", len(result.Items))
	}
}

func TestQueryProjectionAlwaysDropsPasswordHash(t *testing.T) {
	result := mustApply(t, "fields=name,passwordHash")
	for _, item := range result.Items {
		if _, ok := item["passwordHash"]; ok {
			t.Fatal("passwordHash survived projection")
		}
		if _, ok := item["name"]; !ok {
			t.Fatal("requested field dropped")
		}
		if _, ok := item["age"]; ok {
			t.Fatal("unrequested field kept")
		}
	}

	// Even without an explicit projection the hash never leaks.
	result = mustApply(t, "")
	for _, item := range result.Items {
		if _, ok := item["passwordHash"]; ok {
			t.Fatal("passwordHash leaked without projection")
		}
	}
}

func TestQueryPagination(t *testing.T) {
	result := mustApply(t, "page=2&limit=3&sort=age")
	if result.Pagination.CurrentPage != 2 || result.Pagination.Limit != 3 {
		t.Fatalf("pagination = %+v", result.Pagination)
	}
	if result.Pagination.NumberOfPages != 2 {
		t.Fatalf("numberOfPages = %d, want 2", result.Pagination.NumberOfPages)
	}
	if result.Pagination.Prev != 1 || result.Pagination.Next != 0 {
		t.Fatalf("prev/next = %d/%d", result.Pagination.Prev, result.Pagination.Next)
	}
	if len(result.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(result.Items))
	}
}

func TestQueryPageBeyondRangeIsEmpty(t *testing.T) {
	result := mustApply(t, "page=9&limit=2")
	if len(result.Items) != 0 {
		t.Fatalf("items = %d, want 0", len(result.Items))
	}
	if result.Pagination.CurrentPage != 9 {
		t.Fatalf("currentPage = %d, want 9", result.Pagination.CurrentPage)
	}
}

func TestQueryInvalidControlsFallBack(t *testing.T) {
	result := mustApply(t, "page=-3&limit=zero")
	if result.Pagination.CurrentPage != 1 {
		t.Fatalf("currentPage = %d, want 1", result.Pagination.CurrentPage)
	}
	if result.Pagination.Limit != defaultQueryLimit {
		t.Fatalf("limit = %d, want %d", result.Pagination.Limit, defaultQueryLimit)
	}
}

func TestQuerySortAscendingNumeric(t *testing.T) {
	result := mustApply(t, "sort=age")
	ages := make([]float64, 0, len(result.Items))
	for _, item := range result.Items {
		ages = append(ages, item["age"].(float64))
	}
	for i := 1; i < len(ages); i++ {
		if ages[i-1] > ages[i] {
			t.Fatalf("not ascending: %v", ages)
		}
	}
}
