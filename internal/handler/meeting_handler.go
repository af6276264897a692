package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"garden-relay/internal/types"
)

// MeetingService - операции видеоплатформы, нужные relay
type MeetingService interface {
	CreateMeeting(ctx context.Context) (types.Meeting, error)
	ListOrCreateParticipant(ctx context.Context, meetingID string) (types.Participant, error)
}

// MeetingHandler проксирует создание встреч и участников на видеоплатформу
type MeetingHandler struct {
	logger     *zap.Logger
	service    MeetingService
	apiAddress string
}

// NewMeetingHandler создает новый хендлер
func NewMeetingHandler(logger *zap.Logger, service MeetingService, apiAddress string) *MeetingHandler {
	return &MeetingHandler{
		logger:     logger,
		service:    service,
		apiAddress: apiAddress,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *MeetingHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/meetings", h.CreateMeeting)
	router.POST("/meetings/:meetingId/participants", h.CreateParticipant)
	router.GET("/api-address", h.APIAddress)
}

// CreateMeeting создает встречу и возвращает запись платформы без изменений
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	meeting, err := h.service.CreateMeeting(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Meeting created")
	c.Data(http.StatusOK, "application/json; charset=utf-8", meeting)
}

// CreateParticipant добавляет участника во встречу
func (h *MeetingHandler) CreateParticipant(c *gin.Context) {
	meetingID := c.Param("meetingId")

	participant, err := h.service.ListOrCreateParticipant(c.Request.Context(), meetingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Participant created", zap.String("meeting_id", meetingID))
	c.Data(http.StatusOK, "application/json; charset=utf-8", participant)
}

// APIAddress отдает адрес платформы для браузерного SDK
func (h *MeetingHandler) APIAddress(c *gin.Context) {
	c.String(http.StatusOK, h.apiAddress)
}
