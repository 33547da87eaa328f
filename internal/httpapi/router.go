package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handlers 路由依赖；WS 为 nil 时不挂载 /ws
type Handlers struct {
	Health    *HealthHandler
	Scenarios *ScenarioHandler
	Sessions  *SessionHandler
	WS        http.Handler
}

// NewRouter 注册 REST 与 websocket 路由
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.HealthCheck)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.Scenarios.List)
			r.Post("/", h.Scenarios.Create)
			r.Get("/{id}", h.Scenarios.Get)
			r.Put("/{id}", h.Scenarios.Update)
			r.Delete("/{id}", h.Scenarios.Delete)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.Sessions.List)
			r.Post("/", h.Sessions.Create)
			r.Get("/{id}", h.Sessions.Get)
			r.Get("/{id}/results", h.Sessions.Results)
			r.Delete("/{id}", h.Sessions.Delete)
		})
	})

	if h.WS != nil {
		r.Handle("/ws", h.WS)
	}
	return r
}

// requestLogger 用 zap 记录请求（替代 middleware.Logger 的文本输出）
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote_addr", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
