package types

import "encoding/json"

// Meeting - запись встречи, возвращаемая видеоплатформой как есть
type Meeting = json.RawMessage

// Participant - запись участника встречи, возвращаемая видеоплатформой как есть
type Participant = json.RawMessage

// FramePayload - один кадр, присланный клиентом на детекцию
type FramePayload struct {
	// MimeType взят из заголовка data-URI, пустой если заголовка не было
	MimeType string
	// Base64Data - полезная нагрузка без заголовка data-URI
	Base64Data string
	// Data - декодированные байты изображения
	Data []byte
}

// DetectionResult - ответ внешнего детектора, передается клиенту без изменений
type DetectionResult struct {
	ContentType string
	Body        []byte
}

// DetectionRequest - тело запроса POST /weed-detection
type DetectionRequest struct {
	Image string `json:"image"`
}

// ApiResponse - конверт для ответов об ошибках и служебных ответов
type ApiResponse struct {
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Message   string            `json:"message"`
	Timestamp int64             `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
