package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/harora-WM/chaos-engineering-api/internal/api/middleware"
	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler http.HandlerFunc

	TestOpenSearch http.HandlerFunc
	ListIndices    http.HandlerFunc
	FetchData      http.HandlerFunc
	TestModel      http.HandlerFunc

	GenerateHandler       http.HandlerFunc
	GenerateStreamHandler http.HandlerFunc
	ListRuns              http.HandlerFunc
	GetRun                http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS(deps.CORSOrigins))

	// Public health check
	r.Get("/", orNotImplemented(deps.HealthHandler))
	r.Get("/health", orNotImplemented(deps.HealthHandler))

	auth := deps.Auth
	if auth == nil {
		auth = mw.NewAuth(nil)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/api/opensearch/test-connection", orNotImplemented(deps.TestOpenSearch))
		r.Post("/api/opensearch/indices", orNotImplemented(deps.ListIndices))
		r.Post("/api/opensearch/fetch-data", orNotImplemented(deps.FetchData))

		r.Post("/api/model/test-connection", orNotImplemented(deps.TestModel))
		r.Post("/api/bedrock/test-connection", orNotImplemented(deps.TestModel))

		r.Get("/api/chaos/runs", orNotImplemented(deps.ListRuns))
		r.Get("/api/chaos/runs/{runID}", orNotImplemented(deps.GetRun))

		// Generation calls the model and is rate limited.
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimit.Limit)

			r.Post("/api/chaos/generate", orNotImplemented(deps.GenerateHandler))
			r.Post("/api/chaos/generate-stream", orNotImplemented(deps.GenerateStreamHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
