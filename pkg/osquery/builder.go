package osquery

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultSampleSize is the number of hits requested when sampling an index.
// It is the default max_result_window of an OpenSearch index.
const DefaultSampleSize = 10000

// CatIndicesColumns are the columns requested from the _cat/indices API.
var CatIndicesColumns = []string{"index", "health", "status", "docs.count", "store.size", "pri", "rep"}

// QueryBuilder constructs OpenSearch request paths and bodies.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// SearchBody is the JSON body of a _search request.
type SearchBody struct {
	Size  int            `json:"size"`
	Query map[string]any `json:"query"`
}

// BuildSampleQuery returns an unsorted match_all query for up to size hits.
// Sorting is left out because sample indices rarely share a sortable field.
func (b QueryBuilder) BuildSampleQuery(size int) SearchBody {
	if size <= 0 {
		size = DefaultSampleSize
	}
	return SearchBody{
		Size:  size,
		Query: map[string]any{"match_all": map[string]any{}},
	}
}

// SearchPath returns the _search path for an index.
func (b QueryBuilder) SearchPath(index string) string {
	return fmt.Sprintf("/%s/_search", url.PathEscape(index))
}

// MappingPath returns the _mapping path for an index.
func (b QueryBuilder) MappingPath(index string) string {
	return fmt.Sprintf("/%s/_mapping", url.PathEscape(index))
}

// CatIndicesPath returns the JSON _cat/indices path with the listing columns.
func (b QueryBuilder) CatIndicesPath() string {
	return "/_cat/indices?format=json&h=" + strings.Join(CatIndicesColumns, ",")
}
