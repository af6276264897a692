package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"garden-relay/internal/detector"
	"garden-relay/internal/types"
)

// DetectionHandler принимает кадр от браузера и передает его детектору
type DetectionHandler struct {
	logger       *zap.Logger
	detector     detector.Detector
	maxBodyBytes int64
}

// NewDetectionHandler создает новый хендлер
func NewDetectionHandler(logger *zap.Logger, d detector.Detector, maxBodyBytes int64) *DetectionHandler {
	return &DetectionHandler{
		logger:       logger,
		detector:     d,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *DetectionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/weed-detection", h.Detect)
}

// Detect обрабатывает POST /weed-detection
func (h *DetectionHandler) Detect(c *gin.Context) {
	if !isJSON(c.GetHeader("Content-Type")) {
		respondError(c, h.logger, &types.ValidationError{Message: "Content-Type must be application/json"})
		return
	}

	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	var req types.DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(c, h.logger, err)
		case errors.Is(err, io.EOF):
			respondError(c, h.logger, &types.ValidationError{Message: "No image provided"})
		default:
			respondError(c, h.logger, &types.ValidationError{Message: "invalid JSON body: " + err.Error()})
		}
		return
	}

	frame, err := detector.ParseFrame(req.Image)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Debug("Detection requested",
		zap.String("backend", h.detector.Name()),
		zap.String("mime_type", frame.MimeType),
		zap.Int("frame_bytes", len(frame.Data)))

	result, err := h.detector.Detect(c.Request.Context(), frame)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, result.ContentType, result.Body)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
