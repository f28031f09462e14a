package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/middleware"
)

// RouterConfig carries the optional pieces of the middleware chain. Nil
// or zero fields are left out of the chain.
type RouterConfig struct {
	Health  *health.Checker
	Metrics *metrics.Metrics
	Limiter *middleware.Limiter
	Timeout time.Duration
}

// NewRouter builds the daemon's HTTP handler.
//
// Route table:
//
//	GET    /api/v1/terms                      list all terms
//	POST   /api/v1/terms                      add or merge pages
//	GET    /api/v1/terms/{name}               get one term
//	PUT    /api/v1/terms/{name}               rename (merges into an existing name)
//	DELETE /api/v1/terms/{name}               remove a term
//	DELETE /api/v1/terms/{name}/pages/{page}  remove a page
//	GET    /api/v1/prefix?q=                  prefix search
//	GET    /api/v1/stats/most-frequent        term with the most pages
//	GET    /api/v1/cache/stats                prefix cache counters
//	GET    /api/v1/export                     term file download
//	GET    /health/live, /health/ready        probes
//
// Middleware chain (outermost first):
//
//	RequestID → Trace → Metrics → RateLimit → Timeout → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/terms", h.ListTerms)
	mux.HandleFunc("POST /api/v1/terms", h.AddTerm)
	mux.HandleFunc("GET /api/v1/terms/{name}", h.GetTerm)
	mux.HandleFunc("PUT /api/v1/terms/{name}", h.RenameTerm)
	mux.HandleFunc("DELETE /api/v1/terms/{name}", h.RemoveTerm)
	mux.HandleFunc("DELETE /api/v1/terms/{name}/pages/{page}", h.RemovePage)

	mux.HandleFunc("GET /api/v1/prefix", h.Prefix)
	mux.HandleFunc("GET /api/v1/stats/most-frequent", h.MostFrequent)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /api/v1/export", h.Export)

	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if cfg.Timeout > 0 {
		chain = middleware.Timeout(cfg.Timeout)(chain)
	}
	if cfg.Limiter != nil {
		chain = middleware.RateLimit(cfg.Limiter)(chain)
	}
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics)(chain)
	}
	chain = middleware.Trace(slog.Default())(chain)
	chain = middleware.RequestID(chain)

	return chain
}
