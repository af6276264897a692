package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"garden-relay/internal/detector"
	"garden-relay/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 4
)

// SessionObserver получает события открытия и закрытия websocket сессий
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

// StreamHandler - websocket вариант детекции: каждый текстовый кадр {image} получает один ответ
type StreamHandler struct {
	logger       *zap.Logger
	detector     detector.Detector
	maxBodyBytes int64
	upgrader     websocket.Upgrader
	observer     SessionObserver
	active       atomic.Int32
}

// streamSession - одно websocket соединение
type streamSession struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// NewStreamHandler создает хендлер. checkOrigin должен совпадать с CORS allow-list.
func NewStreamHandler(
	logger *zap.Logger,
	d detector.Detector,
	maxBodyBytes int64,
	checkOrigin func(r *http.Request) bool,
	observer SessionObserver,
) *StreamHandler {
	return &StreamHandler{
		logger:       logger,
		detector:     d,
		maxBodyBytes: maxBodyBytes,
		observer:     observer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// RegisterRoutes регистрирует маршруты
func (h *StreamHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws/weed-detection", h.Stream)
}

// ActiveSessions возвращает число открытых сессий
func (h *StreamHandler) ActiveSessions() int {
	return int(h.active.Load())
}

// Stream поднимает websocket и обслуживает его до закрытия клиентом
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	session := &streamSession{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger,
	}

	h.active.Add(1)
	if h.observer != nil {
		h.observer.SessionOpened()
	}
	h.logger.Info("Detection stream opened",
		zap.String("session_id", session.id),
		zap.String("client_ip", c.ClientIP()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.writeLoop()
	}()

	h.readLoop(c.Request.Context(), session)
	<-done

	h.active.Add(-1)
	if h.observer != nil {
		h.observer.SessionClosed()
	}
	h.logger.Info("Detection stream closed", zap.String("session_id", session.id))
}

// readLoop читает кадры и отдает результаты в send; кадры одной сессии обрабатываются по очереди
func (h *StreamHandler) readLoop(ctx context.Context, session *streamSession) {
	defer close(session.send)

	if h.maxBodyBytes > 0 {
		session.conn.SetReadLimit(h.maxBodyBytes)
	}
	session.conn.SetReadDeadline(time.Now().Add(pongWait))
	session.conn.SetPongHandler(func(string) error {
		return session.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("session_id", session.id),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			session.send <- encodeStreamError(&types.ValidationError{Message: "only text frames are supported"})
			continue
		}

		session.conn.SetReadDeadline(time.Now().Add(pongWait))
		session.send <- h.detectMessage(ctx, message)
	}
}

func (h *StreamHandler) detectMessage(ctx context.Context, message []byte) []byte {
	var req types.DetectionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return encodeStreamError(&types.ValidationError{Message: "invalid JSON frame: " + err.Error()})
	}

	frame, err := detector.ParseFrame(req.Image)
	if err != nil {
		return encodeStreamError(err)
	}

	result, err := h.detector.Detect(ctx, frame)
	if err != nil {
		return encodeStreamError(err)
	}
	if json.Valid(result.Body) {
		return result.Body
	}
	// не-JSON ответ детектора заворачиваем, чтобы клиент всегда получал JSON кадр
	wrapped, _ := json.Marshal(map[string]string{"content_type": result.ContentType, "body": string(result.Body)})
	return wrapped
}

// writeLoop пишет ответы и пинги; единственный писатель в соединение
func (s *streamSession) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("WebSocket write error", zap.String("session_id", s.id), zap.Error(err))
				s.drain()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.drain()
				return
			}
		}
	}
}

// drain разблокирует readLoop после сбоя записи; закрытое соединение завершит чтение
func (s *streamSession) drain() {
	s.conn.Close()
	go func() {
		for range s.send {
		}
	}()
}

func encodeStreamError(err error) []byte {
	status, title := statusFor(err)
	body, _ := json.Marshal(errorResponse(status, title, err))
	return body
}
