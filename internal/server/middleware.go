package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RequestLogger logs each request once it completes and records it in the API metrics.
//
// The route label is chi's matched pattern so ids in paths do not explode metric cardinality.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				elapsed := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				metrics.RecordAPIRequest(r.Method, route, status, elapsed)

				kv := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration", elapsed,
					"request_id", chimiddleware.GetReqID(r.Context()),
				}
				if status >= http.StatusInternalServerError {
					logger.Error("request failed", kv...)
				} else {
					logger.Debug("request", kv...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// CORS allows browser clients from origins to call the API and send the client id header.
func CORS(origins []string) Middleware {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", ClientIDHeader},
		MaxAge:         300,
	})
}

// RateLimit limits each client IP to perMinute requests. A negative value disables limiting.
func RateLimit(perMinute int) Middleware {
	if perMinute < 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(perMinute, time.Minute)
}
