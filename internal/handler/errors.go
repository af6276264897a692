package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"garden-relay/internal/types"
)

// statusFor переводит ошибку домена в HTTP статус и короткий заголовок ответа
func statusFor(err error) (int, string) {
	var (
		validationErr *types.ValidationError
		upstreamErr   *types.UpstreamError
		forwarderErr  *types.ForwarderError
		tooLargeErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLargeErr):
		return http.StatusRequestEntityTooLarge, "Request body too large"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Invalid request"
	case errors.As(err, &upstreamErr):
		return http.StatusInternalServerError, "Video platform request failed"
	case errors.As(err, &forwarderErr):
		return http.StatusInternalServerError, "Detection failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func errorResponse(status int, title string, err error) types.ApiResponse {
	return types.ApiResponse{
		Status:    "error",
		Error:     title,
		Message:   err.Error(),
		Timestamp: time.Now().Unix(),
		Metadata:  map[string]string{"code": http.StatusText(status)},
	}
}

// respondError пишет ошибку в общем конверте; 5xx логируются как error, остальное как warn
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, title := statusFor(err)

	fields := []zap.Field{
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(title, fields...)
	} else {
		logger.Warn(title, fields...)
	}

	c.AbortWithStatusJSON(status, errorResponse(status, title, err))
}
