package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"garden-relay/internal/config"
	"garden-relay/internal/types"
)

// Detector - внешний детектор сорняков (HTTP сервис или локальный процесс)
type Detector interface {
	Name() string
	Detect(ctx context.Context, frame types.FramePayload) (types.DetectionResult, error)
}

// Observer получает исход каждого вызова детектора (метрики)
type Observer interface {
	ObserveDetection(backend string, err error, elapsed time.Duration)
	ObserveCleanupFailure(backend string)
}

var dataURIPrefix = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,`)

// ParseFrame снимает заголовок data-URI и проверяет base64
func ParseFrame(image string) (types.FramePayload, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return types.FramePayload{}, &types.ValidationError{Message: "No image provided"}
	}

	var mimeType string
	if m := dataURIPrefix.FindStringSubmatch(image); m != nil {
		mimeType = m[1]
		image = image[len(m[0]):]
	}
	if image == "" {
		return types.FramePayload{}, &types.ValidationError{Message: "No image provided"}
	}

	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(image)
	}
	if err != nil {
		return types.FramePayload{}, &types.ValidationError{Message: fmt.Sprintf("image is not valid base64: %v", err)}
	}

	return types.FramePayload{
		MimeType:   mimeType,
		Base64Data: image,
		Data:       data,
	}, nil
}

// New создает детектор, выбранный в конфигурации
func New(cfg config.DetectionConfig, observer Observer, logger *zap.Logger) (Detector, error) {
	switch cfg.Backend {
	case config.BackendHosted:
		return NewHostedDetector(HostedOptions{
			Endpoint: cfg.Hosted.Endpoint,
			APIKey:   cfg.Hosted.APIKey,
			Timeout:  cfg.Timeout,
			Observer: observer,
		}, logger), nil
	case config.BackendProcess:
		d, err := NewProcessDetector(ProcessOptions{
			Command:  cfg.Process.Command,
			TempDir:  cfg.Process.TempDir,
			Timeout:  cfg.Timeout,
			Observer: observer,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, &types.ConfigurationError{Field: "detection.backend", Err: fmt.Errorf("unknown backend %q", cfg.Backend)}
	}
}

// extensionFor подбирает расширение временного файла по mime из data-URI
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}
