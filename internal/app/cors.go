package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin/render"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"garden-relay/internal/types"
)

// OriginGuard - CORS по allow-list. Запрос с Origin вне списка отклоняется 403 до маршрутизации,
// запрос без Origin (сервер-сервер, curl) проходит.
type OriginGuard struct {
	cors   *cors.Cors
	logger *zap.Logger
}

// NewOriginGuard создает guard для списка origin
func NewOriginGuard(allowedOrigins []string, logger *zap.Logger) *OriginGuard {
	return &OriginGuard{
		cors: cors.New(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           86400,
		}),
		logger: logger,
	}
}

// OriginAllowed проверяет Origin запроса; используется и websocket upgrader'ом
func (g *OriginGuard) OriginAllowed(r *http.Request) bool {
	if r.Header.Get("Origin") == "" {
		return true
	}
	return g.cors.OriginAllowed(r)
}

// Handler оборачивает next: отказ для чужих origin, иначе стандартная обработка rs/cors
func (g *OriginGuard) Handler(next http.Handler) http.Handler {
	allowed := g.cors.Handler(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.OriginAllowed(r) {
			g.logger.Warn("Origin rejected",
				zap.String("origin", r.Header.Get("Origin")),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_ = render.WriteJSON(w, types.ApiResponse{
				Status:    "error",
				Error:     "Forbidden",
				Message:   "origin is not allowed",
				Timestamp: time.Now().Unix(),
			})
			return
		}
		allowed.ServeHTTP(w, r)
	})
}
