package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/provider"
	"github.com/harora-WM/chaos-engineering-api/internal/opensearch"
	"github.com/harora-WM/chaos-engineering-api/internal/plan"
	"github.com/harora-WM/chaos-engineering-api/internal/prompt"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// GenerateResult is the blocking generation response.
type GenerateResult struct {
	Success bool                     `json:"success"`
	Plan    string                   `json:"plan"`
	Metrics models.GenerationMetrics `json:"metrics"`
	Error   string                   `json:"error,omitempty"`
}

// ChaosHandler serves plan generation.
type ChaosHandler struct {
	clients  opensearch.Factory
	invokers provider.Factory
	defaults models.OpenSearchConnection
	builder  *prompt.Builder
	recorder plan.RunRecorder
}

// NewChaosHandler creates a ChaosHandler. recorder may be nil.
func NewChaosHandler(clients opensearch.Factory, invokers provider.Factory, defaults models.OpenSearchConnection, builder *prompt.Builder, recorder plan.RunRecorder) *ChaosHandler {
	if builder == nil {
		builder = prompt.NewBuilder(prompt.Options{})
	}
	return &ChaosHandler{
		clients:  clients,
		invokers: invokers,
		defaults: defaults,
		builder:  builder,
		recorder: recorder,
	}
}

func (h *ChaosHandler) service(r *http.Request, sel models.ModelSelection) (*plan.Service, error) {
	inv, err := h.invokers(r.Context(), sel)
	if err != nil {
		return nil, err
	}
	return plan.NewService(inv, h.builder, plan.WithRecorder(h.recorder)), nil
}

// Generate handles POST /api/chaos/generate.
func (h *ChaosHandler) Generate(w http.ResponseWriter, r *http.Request) {
	req := newGenerateRequest()
	if !decodeRequest(w, r, req, h.defaults) {
		return
	}

	svc, err := h.service(r, req.AWSConfig)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "MODEL_UNAVAILABLE", "Failed to initialize model client: "+err.Error(), nil)
		return
	}

	// Retries with per-attempt timeouts can outlast the server write timeout;
	// the structured failure must still reach the client.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	text, metrics := svc.Generate(r.Context(), h.clients(req.OpenSearchConfig), req.Index, req.Options)
	result := GenerateResult{
		Success: metrics.Success,
		Plan:    text,
		Metrics: metrics,
		Error:   metrics.Error,
	}
	if !metrics.Success {
		response.Status(w, http.StatusBadGateway, result)
		return
	}
	response.JSON(w, result)
}

// GenerateStream handles POST /api/chaos/generate-stream. Each plan fragment
// is sent as one server-sent event. A failure after the stream has started
// is sent as a final {"error": ...} event.
func (h *ChaosHandler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	req := newGenerateRequest()
	if !decodeRequest(w, r, req, h.defaults) {
		return
	}

	svc, err := h.service(r, req.AWSConfig)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "MODEL_UNAVAILABLE", "Failed to initialize model client: "+err.Error(), nil)
		return
	}

	rc := http.NewResponseController(w)
	// Plans take minutes; the server write timeout must not cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	reqID := chimw.GetReqID(r.Context())
	for text, err := range svc.GenerateStreaming(r.Context(), h.clients(req.OpenSearchConfig), req.Index, req.Options) {
		if err != nil {
			slog.Warn("plan stream failed", "index", req.Index, "request_id", reqID, "error", err)
			text = plan.ErrorFragment(err.Error())
		}
		if werr := writeEvent(w, text); werr != nil {
			slog.Info("plan stream client gone", "index", req.Index, "request_id", reqID, "error", werr)
			return
		}
		_ = rc.Flush()
		if err != nil {
			return
		}
	}
}

// writeEvent frames data as one SSE event, one data line per text line.
func writeEvent(w io.Writer, data string) error {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")

	var sb strings.Builder
	for _, line := range strings.Split(data, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}
