package handler

import (
	"errors"
	"net/http"

	"github.com/harora-WM/chaos-engineering-api/internal/analysis"
	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
	"github.com/harora-WM/chaos-engineering-api/internal/opensearch"
	"github.com/harora-WM/chaos-engineering-api/internal/prompt"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// ConnectionResult reports a connectivity probe.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IndicesResult lists the indices of a cluster.
type IndicesResult struct {
	Success bool               `json:"success"`
	Indices []models.IndexInfo `json:"indices"`
	Error   string             `json:"error,omitempty"`
}

// FetchDataResult is an index sample plus its aggregate summary.
type FetchDataResult struct {
	models.IndexFetchResult
	Summary *models.SampleSummary `json:"summary,omitempty"`
}

// OpenSearchHandler serves the index reader endpoints.
type OpenSearchHandler struct {
	clients  opensearch.Factory
	defaults models.OpenSearchConnection
	builder  *prompt.Builder
}

// NewOpenSearchHandler creates an OpenSearchHandler. defaults fills
// connection fields a request leaves empty.
func NewOpenSearchHandler(clients opensearch.Factory, defaults models.OpenSearchConnection, builder *prompt.Builder) *OpenSearchHandler {
	if builder == nil {
		builder = prompt.NewBuilder(prompt.Options{})
	}
	return &OpenSearchHandler{clients: clients, defaults: defaults, builder: builder}
}

// TestConnection handles POST /api/opensearch/test-connection.
func (h *OpenSearchHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if !decodeRequest(w, r, &req, h.defaults) {
		return
	}

	ok, msg := h.clients(req.OpenSearchConnection).TestConnection(r.Context())
	response.JSON(w, ConnectionResult{Success: ok, Message: msg})
}

// ListIndices handles POST /api/opensearch/indices.
func (h *OpenSearchHandler) ListIndices(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if !decodeRequest(w, r, &req, h.defaults) {
		return
	}

	indices, err := h.clients(req.OpenSearchConnection).ListIndices(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, opensearch.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		response.Status(w, status, IndicesResult{
			Success: false,
			Indices: []models.IndexInfo{},
			Error:   "Failed to get indices: " + err.Error(),
		})
		return
	}

	opensearch.SortByDocCount(indices)
	response.JSON(w, IndicesResult{Success: true, Indices: indices})
}

// FetchData handles POST /api/opensearch/fetch-data.
func (h *OpenSearchHandler) FetchData(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !decodeRequest(w, r, &req, h.defaults) {
		return
	}

	result := h.clients(req.OpenSearchConnection).FetchSample(r.Context(), req.Index)
	if !result.Success {
		response.Status(w, http.StatusBadGateway, FetchDataResult{IndexFetchResult: result})
		return
	}

	summary := analysis.Summarize(h.builder.Normalize(result.Documents), analysis.DefaultTopPatterns)
	response.JSON(w, FetchDataResult{IndexFetchResult: result, Summary: &summary})
}
