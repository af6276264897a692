package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"garden-relay/internal/handler"
	"garden-relay/internal/metrics"
)

// Version выставляется через -ldflags при сборке
var Version = "dev"

// NewRouter создает новый роутер с настройкой маршрутов
func NewRouter(
	meetingHandler *handler.MeetingHandler,
	detectionHandler *handler.DetectionHandler,
	streamHandler *handler.StreamHandler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *gin.Engine {

	// Режим Gin
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": "unexpected failure while handling the request",
		})
	}))
	router.Use(m.Middleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "garden-relay",
			"version": Version,
			"time":    time.Now().Unix(),
		})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("")
	{
		meetingHandler.RegisterRoutes(api)
		detectionHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
			"suggestions": []string{
				"POST /meetings",
				"POST /meetings/:meetingId/participants",
				"POST /weed-detection",
				"GET /api-address",
				"GET /health",
			},
		})
	})

	return router
}
