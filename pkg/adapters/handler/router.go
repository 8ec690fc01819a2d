package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/config"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, log *zap.Logger, items ports.ItemService, lookup ports.LookupService, reports ports.ReportService) http.Handler {
	h := NewHTTPHandler(items, lookup, reports, log)
	mw := NewMiddleware(cfg, log)
	limiter := NewRateLimiter(cfg.RateLimitPerMinute, mw.proxies)

	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.Handle("GET /api/v1/lookup/{code}", limiter.Limit(http.HandlerFunc(h.Lookup)))
	mux.Handle("POST /api/v1/track", limiter.Limit(http.HandlerFunc(h.Track)))

	// Operator Routes
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/v1/items", h.Create)
	protectedMux.HandleFunc("GET /api/v1/items", h.List)
	protectedMux.HandleFunc("GET /api/v1/items/next-code", h.NextCode)
	protectedMux.HandleFunc("GET /api/v1/items/{id}", h.Get)
	protectedMux.HandleFunc("PUT /api/v1/items/{id}", h.Update)
	protectedMux.HandleFunc("DELETE /api/v1/items/{id}", h.Delete)
	protectedMux.HandleFunc("GET /api/v1/report", h.Report)

	// The more specific public patterns above win over this prefix.
	mux.Handle("/api/v1/", mw.AuthMiddleware(protectedMux))

	return mw.RequestLogger(mux)
}
