package detector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"garden-relay/internal/types"
)

const (
	hostedName       = "hosted"
	maxDetailLength  = 4096
	redactedAPIKey   = "[REDACTED]"
	defaultDetection = 30 * time.Second
)

// HostedOptions - параметры внешнего сервиса инференса
type HostedOptions struct {
	Endpoint  string
	APIKey    string
	Timeout   time.Duration
	Transport http.RoundTripper
	Observer  Observer
}

// HostedDetector пересылает base64 кадр во внешний HTTP сервис и возвращает его JSON как есть.
// На диск ничего не пишет.
type HostedDetector struct {
	rest     *resty.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
	observer Observer
	logger   *zap.Logger
}

// NewHostedDetector создает HostedDetector
func NewHostedDetector(opts HostedOptions, logger *zap.Logger) *HostedDetector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDetection
	}

	rest := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())
	if opts.Transport != nil {
		rest.SetTransport(opts.Transport)
	}

	return &HostedDetector{
		rest:     rest,
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		timeout:  timeout,
		observer: opts.Observer,
		logger:   logger,
	}
}

// Name возвращает имя бэкенда
func (d *HostedDetector) Name() string { return hostedName }

// Detect отправляет кадр и возвращает ответ сервиса без изменений
func (d *HostedDetector) Detect(ctx context.Context, frame types.FramePayload) (types.DetectionResult, error) {
	start := time.Now()
	result, err := d.detect(ctx, frame)
	elapsed := time.Since(start)

	if d.observer != nil {
		d.observer.ObserveDetection(hostedName, err, elapsed)
	}
	if err != nil {
		d.logger.Warn("Hosted detection failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		d.logger.Debug("Hosted detection finished",
			zap.Duration("elapsed", elapsed),
			zap.Int("result_bytes", len(result.Body)))
	}
	return result, err
}

func (d *HostedDetector) detect(ctx context.Context, frame types.FramePayload) (types.DetectionResult, error) {
	if frame.Base64Data == "" {
		return types.DetectionResult{}, &types.ValidationError{Message: "No image provided"}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.rest.R().
		SetContext(ctx).
		SetQueryParam("api_key", d.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(frame.Base64Data).
		Post(d.endpoint)
	if err != nil {
		// оригинальная ошибка содержит URL с ключом, наружу идет только очищенный текст
		return types.DetectionResult{}, &types.ForwarderError{
			Backend: hostedName,
			Err:     errors.New(d.redact(err.Error())),
		}
	}

	if !resp.IsSuccess() {
		return types.DetectionResult{}, &types.ForwarderError{
			Backend:    hostedName,
			StatusCode: resp.StatusCode(),
			Detail:     d.redact(types.Truncate(strings.TrimSpace(string(resp.Body())), maxDetailLength)),
		}
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	return types.DetectionResult{ContentType: contentType, Body: resp.Body()}, nil
}

// redact убирает API ключ из любого текста, который может уйти клиенту или в лог
func (d *HostedDetector) redact(s string) string {
	if d.apiKey == "" {
		return s
	}
	s = strings.ReplaceAll(s, d.apiKey, redactedAPIKey)
	if escaped := url.QueryEscape(d.apiKey); escaped != d.apiKey {
		s = strings.ReplaceAll(s, escaped, redactedAPIKey)
	}
	return s
}
