package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harora-WM/chaos-engineering-api/pkg/models"
	"github.com/harora-WM/chaos-engineering-api/pkg/osquery"
)

// Sentinel errors for OpenSearch client failures.
var (
	ErrUnreachable = errors.New("opensearch unreachable")
	ErrQueryError  = errors.New("opensearch query error")
	ErrTimeout     = errors.New("opensearch request timeout")
)

const (
	// DefaultTimeout bounds every request made by the client.
	DefaultTimeout = 30 * time.Second
	// pingTimeout bounds the connection test only.
	pingTimeout = 10 * time.Second
	// maxErrorBody caps how much of an error response is echoed back.
	maxErrorBody = 64 << 10
)

// Client is the interface for reading from an OpenSearch cluster.
type Client interface {
	TestConnection(ctx context.Context) (bool, string)
	ListIndices(ctx context.Context) ([]models.IndexInfo, error)
	FetchSample(ctx context.Context, index string) models.IndexFetchResult
}

// Factory builds a Client for the given connection. Handlers call it once
// per request so each caller's credentials stay isolated.
type Factory func(conn models.OpenSearchConnection) Client

// NewFactory returns a Factory producing HTTP clients with the given timeout.
func NewFactory(timeout time.Duration) Factory {
	return func(conn models.OpenSearchConnection) Client {
		return NewHTTPClient(conn, timeout)
	}
}

// HTTPClient implements Client using the OpenSearch REST API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	qb       osquery.QueryBuilder
	client   *http.Client
}

// NewHTTPClient creates a new OpenSearch HTTP client.
func NewHTTPClient(conn models.OpenSearchConnection, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(conn.Endpoint, "/"),
		username: conn.Username,
		password: conn.Password,
		client:   &http.Client{Timeout: timeout},
	}
}

// TestConnection calls the cluster root and reports the server version.
func (c *HTTPClient) TestConnection(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var info rootResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Sprintf("Connection failed: decoding root response: %v", err)
	}
	version := info.Version.Number
	if version == "" {
		version = "unknown"
	}
	return true, fmt.Sprintf("Connected to OpenSearch v%s", version)
}

func (c *HTTPClient) ListIndices(ctx context.Context) ([]models.IndexInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, c.qb.CatIndicesPath(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrQueryError, resp.StatusCode, readBody(resp.Body))
	}

	var indices []models.IndexInfo
	if err := json.NewDecoder(resp.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("decoding indices response: %w", err)
	}
	if indices == nil {
		return []models.IndexInfo{}, nil
	}
	return indices, nil
}

// FetchSample reads the index mapping and one unsorted match_all page.
// It never returns an error; failures are reported in the result. A failed
// mapping call is tolerated and yields an empty mapping.
func (c *HTTPClient) FetchSample(ctx context.Context, index string) models.IndexFetchResult {
	mapping := c.fetchMapping(ctx, index)

	body, err := json.Marshal(c.qb.BuildSampleQuery(osquery.DefaultSampleSize))
	if err != nil {
		return models.FetchFailure(fmt.Sprintf("encoding search body: %v", err))
	}

	resp, err := c.do(ctx, http.MethodPost, c.qb.SearchPath(index), body)
	if err != nil {
		return models.FetchFailure(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: status %d: %s", ErrQueryError, resp.StatusCode, readBody(resp.Body))
		return models.FetchFailure(err.Error())
	}

	var sr searchResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&sr); err != nil {
		return models.FetchFailure(fmt.Sprintf("decoding search response: %v", err))
	}

	docs := make([]map[string]any, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		src := h.Source
		if src == nil {
			src = map[string]any{}
		}
		docs = append(docs, src)
	}

	return models.IndexFetchResult{
		Success:    true,
		Mapping:    mapping,
		Documents:  docs,
		SampleSize: len(docs),
		TotalHits:  parseTotal(sr.Hits.Total),
		TookMs:     sr.Took,
	}
}

func (c *HTTPClient) fetchMapping(ctx context.Context, index string) map[string]any {
	resp, err := c.do(ctx, http.MethodGet, c.qb.MappingPath(index), nil)
	if err != nil {
		return map[string]any{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return map[string]any{}
	}

	mapping := map[string]any{}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&mapping); err != nil {
		return map[string]any{}
	}
	return mapping
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// SortByDocCount orders indices by document count, largest first. Rows
// whose count is missing or not numeric sort last.
func SortByDocCount(indices []models.IndexInfo) {
	sort.SliceStable(indices, func(i, j int) bool {
		return docCount(indices[i]) > docCount(indices[j])
	})
}

func docCount(info models.IndexInfo) int64 {
	n, err := strconv.ParseInt(info.DocsCount, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// parseTotal accepts both the object form {"value": n} and a bare number.
func parseTotal(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var obj struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}

// --- OpenSearch response types ---

type rootResponse struct {
	Version struct {
		Number string `json:"number"`
	} `json:"version"`
}

type searchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []searchHit     `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
