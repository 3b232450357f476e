/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web and mobile clients

ROUTE GROUPS:
  /api/v1/tuition/*          Mobile (quota limited)
  /api/v1/banking/*          Banking integration
  /api/v1/payment            Payments
  /api/v1/admin/*            Admin operations
  /api/v1/ai/*               Chat assistant
  /metrics                   Prometheus
  /healthz                   Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tuition/{studentNo}", h.GetTuitionLimited)

		r.Route("/banking", func(r chi.Router) {
			r.Get("/tuition/{studentNo}", h.GetTuition)
		})

		r.Post("/payment", h.PayTuition)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/students", h.CreateSubject)
			r.Post("/tuition", h.AddTuition)
			r.Get("/unpaid", h.ListUnpaid)
			r.Get("/payments", h.ListPayments)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Post("/chat", h.Chat)
			r.Post("/debug", h.DebugIntent)
			r.Get("/cache/stats", h.CacheStats)
			r.Delete("/cache", h.ClearCache)
		})
	})

	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	r.Get("/healthz", h.Healthz)

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
