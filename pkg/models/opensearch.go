package models

// OpenSearchConnection identifies a cluster and the basic-auth credentials
// used for every request against it.
type OpenSearchConnection struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// IndexInfo is one row of the _cat/indices listing.
type IndexInfo struct {
	Index     string `json:"index"`
	Health    string `json:"health"`
	Status    string `json:"status"`
	DocsCount string `json:"docs.count,omitempty"`
	StoreSize string `json:"store.size,omitempty"`
	Pri       string `json:"pri,omitempty"`
	Rep       string `json:"rep,omitempty"`
}

// IndexFetchResult is the outcome of sampling an index. When Success is
// false only Error is set.
type IndexFetchResult struct {
	Success    bool             `json:"success"`
	Mapping    map[string]any   `json:"mapping,omitempty"`
	Documents  []map[string]any `json:"documents,omitempty"`
	SampleSize int              `json:"sample_size"`
	TotalHits  int              `json:"total_hits"`
	TookMs     int              `json:"took_ms"`
	Error      string           `json:"error,omitempty"`
}

// FetchFailure builds the failure form of IndexFetchResult.
func FetchFailure(msg string) IndexFetchResult {
	return IndexFetchResult{Success: false, Error: msg}
}
