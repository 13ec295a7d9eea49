// Package api exposes the page service over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/metrics"
	"github.com/sells-group/hotspot/internal/service"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	CORSOrigins []string
}

// Handler serves the page endpoints.
type Handler struct {
	svc     *service.Service
	queries *schema.Decoder
}

// NewHandler creates a Handler over svc.
func NewHandler(svc *service.Service) *Handler {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return &Handler{svc: svc, queries: dec}
}

// NewRouter builds the HTTP routes.
func NewRouter(svc *service.Service, cfg RouterConfig) http.Handler {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/pages", func(r chi.Router) {
		r.Get("/", h.listPages)
		r.Post("/", h.addPage)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPage)
			r.Delete("/", h.removePage)
			r.Post("/events", h.postEvent)
			r.Get("/funnel", h.funnel)
			r.Get("/hotspot/{category}", h.hotspot)
			r.Get("/view", h.view)
		})
	})
	return r
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
