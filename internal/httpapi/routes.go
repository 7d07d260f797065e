package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/hub"
	"github.com/DoyleJ11/quadpong-server/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouteOptions struct {
	History MatchHistory // nil disables /sessions/{code}/matches
	WS      ws.Config
	Logger  *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts RouteOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(requestLogger(log.Named("http")))
		r.Use(middleware.Timeout(10 * time.Second))

		r.Post("/sessions", CreateSession(h, log))
		r.Get("/sessions", ListSessions(h))
		r.Get("/sessions/{code}", GetSession(h))
		r.Get("/sessions/{code}/matches", MatchHistoryHandler(opts.History, log))
	})
	r.Get("/healthz", Healthz)

	// Websocket connections outlive any request timeout.
	r.Get("/ws", ws.Handler(h, opts.WS, log))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
