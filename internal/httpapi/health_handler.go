package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	sessions    func() int
}

// NewHealthHandler db、redisClient 可为 nil（未启用）
func NewHealthHandler(db *sql.DB, redisClient *redis.Client, sessions func() int) *HealthHandler {
	return &HealthHandler{db: db, redisClient: redisClient, sessions: sessions}
}

// HealthCheckResponse 健康检查响应
type HealthCheckResponse struct {
	Status         string            `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	ActiveSessions int               `json:"activeSessions"`
	Services       map[string]string `json:"services"`
}

// HealthCheck GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	services := make(map[string]string)

	if h.redisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			status = "unhealthy"
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = "unhealthy"
			services["database"] = "unhealthy: " + err.Error()
		} else {
			services["database"] = "healthy"
		}
	} else {
		services["database"] = "not configured"
	}

	resp := HealthCheckResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions()
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, Ok(resp))
}
