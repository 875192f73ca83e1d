package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/you/go-flightgrid/internal/auth"
	"github.com/you/go-flightgrid/internal/config"
	"github.com/you/go-flightgrid/internal/service"
	"go.uber.org/zap"
)

// NewRouter returns the HTTP surface. Everything but login and health
// requires a token.
func NewRouter(runner *service.Runner, cfg *config.Config, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := NewHandler(runner, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/auth/login", auth.LoginHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg, log))

		r.Post("/searches", h.StartSearch)
		r.Get("/searches", h.ListSearches)
		r.Get("/searches/{id}", h.GetSearch)
		r.Get("/searches/{id}/calendar", h.Calendar)
		r.Get("/searches/{id}/export.csv", h.ExportCSV)

		r.Get("/ws/searches/{id}", h.StreamWS)
		r.Get("/sse/searches/{id}", h.StreamSSE)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Debug("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
