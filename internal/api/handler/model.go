package handler

import (
	"net/http"

	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/provider"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// ModelHandler serves the model connectivity probe.
type ModelHandler struct {
	invokers provider.Factory
}

func NewModelHandler(invokers provider.Factory) *ModelHandler {
	return &ModelHandler{invokers: invokers}
}

// TestConnection handles POST /api/model/test-connection.
func (h *ModelHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var sel models.ModelSelection
	if !decodeRequest(w, r, &sel, models.OpenSearchConnection{}) {
		return
	}

	inv, err := h.invokers(r.Context(), sel)
	if err != nil {
		response.JSON(w, ConnectionResult{Success: false, Message: "Failed to initialize model client: " + err.Error()})
		return
	}

	ok, msg := inv.TestConnection(r.Context())
	response.JSON(w, ConnectionResult{Success: ok, Message: msg})
}
