package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
	"github.com/harora-WM/chaos-engineering-api/internal/store"
)

// RunsHandler serves the generation history.
type RunsHandler struct {
	store store.Store
}

// NewRunsHandler creates a RunsHandler. A nil store answers 501.
func NewRunsHandler(s store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

// List handles GET /api/chaos/runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		notConfigured(w)
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		IndexName: q.Get("index"),
		Mode:      q.Get("mode"),
		Page:      1,
		Limit:     20,
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxPage {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("page must be between 1 and %d", store.MaxPage), nil)
			return
		}
		filter.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "success must be true or false", nil)
			return
		}
		filter.Success = &b
	}

	runs, total, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs", nil)
		return
	}

	response.Collection(w, runs, response.PaginationMeta{
		Page:    filter.Page,
		Limit:   filter.Limit,
		Total:   total,
		HasNext: filter.Page*filter.Limit < total,
	})
}

// Get handles GET /api/chaos/runs/{runID}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		notConfigured(w)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a UUID", nil)
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Run not found", nil)
		return
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get run", nil)
		return
	}
	response.JSON(w, run)
}

func notConfigured(w http.ResponseWriter) {
	response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Run history requires DATABASE_URL", nil)
}
