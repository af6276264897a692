package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"garden-relay/internal/signer"
	"garden-relay/internal/types"
)

const (
	tokenPath        = "/oauth/token"
	meetingsPath     = "/v1/meetings"
	participantsPath = "/v1/meetings/{meetingId}/participants"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	OperationToken             = "token"
	OperationCreateMeeting     = "create_meeting"
	OperationCreateParticipant = "create_participant"

	maxErrorBody = 2048
)

// TokenIssuer выпускает свежий подписанный токен на каждый вызов
type TokenIssuer interface {
	IssueToken() (*signer.AccessToken, error)
}

// CallObserver получает исход каждого обращения к платформе (метрики)
type CallObserver interface {
	ObserveUpstream(operation string, err error, elapsed time.Duration)
}

// Options - параметры клиента видеоплатформы
type Options struct {
	APIAddress string
	Timeout    time.Duration
	Transport  http.RoundTripper
	Observer   CallObserver
}

// Client - клиент видеоплатформы. Состояния между вызовами не держит.
type Client struct {
	rest     *resty.Client
	issuer   TokenIssuer
	logger   *zap.Logger
	observer CallObserver
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewClient создает клиента. Вызывается один раз при старте.
func NewClient(opts Options, issuer TokenIssuer, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rest := resty.New().
		SetBaseURL(strings.TrimRight(opts.APIAddress, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())

	if opts.Transport != nil {
		rest.SetTransport(opts.Transport)
	} else {
		rest.SetTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		})
	}

	return &Client{
		rest:     rest,
		issuer:   issuer,
		logger:   logger,
		observer: opts.Observer,
	}
}

// CreateMeeting создает новую встречу на платформе
func (c *Client) CreateMeeting(ctx context.Context) (types.Meeting, error) {
	start := time.Now()
	body, err := c.createMeeting(ctx)
	c.observe(OperationCreateMeeting, err, start)
	return body, err
}

func (c *Client) createMeeting(ctx context.Context) (types.Meeting, error) {
	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{}).
		Post(meetingsPath)

	body, err := checkResponse(OperationCreateMeeting, resp, err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Meeting created", zap.Int("bytes", len(body)))
	return types.Meeting(body), nil
}

// ListOrCreateParticipant создает участника во встрече meetingID
func (c *Client) ListOrCreateParticipant(ctx context.Context, meetingID string) (types.Participant, error) {
	start := time.Now()
	body, err := c.createParticipant(ctx, meetingID)
	c.observe(OperationCreateParticipant, err, start)
	return body, err
}

func (c *Client) createParticipant(ctx context.Context, meetingID string) (types.Participant, error) {
	if strings.TrimSpace(meetingID) == "" {
		return nil, &types.ValidationError{Message: "meeting id is required"}
	}

	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("meetingId", meetingID).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{}).
		Post(participantsPath)

	body, err := checkResponse(OperationCreateParticipant, resp, err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Participant created",
		zap.String("meeting_id", meetingID),
		zap.Int("bytes", len(body)))
	return types.Participant(body), nil
}

// accessToken подписывает новое утверждение и обменивает его на токен доступа.
// Полученный токен используется ровно для одного запроса.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	assertion, err := c.issuer.IssueToken()
	if err != nil {
		return "", &types.UpstreamError{Operation: OperationToken, Err: err}
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":            "client_credentials",
			"client_assertion_type": clientAssertionType,
			"client_assertion":      assertion.Raw,
		}).
		Post(tokenPath)

	body, err := checkResponse(OperationToken, resp, err)
	if err != nil {
		return "", err
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", &types.UpstreamError{
			Operation:  OperationToken,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("decode token response: %w", err),
		}
	}
	if token.AccessToken == "" {
		return "", &types.UpstreamError{
			Operation:  OperationToken,
			StatusCode: resp.StatusCode(),
			Err:        errors.New("token response has no access_token"),
		}
	}

	return token.AccessToken, nil
}

func (c *Client) observe(operation string, err error, start time.Time) {
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn("Upstream call failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}
	if c.observer != nil {
		c.observer.ObserveUpstream(operation, err, elapsed)
	}
}

// checkResponse превращает сетевую ошибку или не-2xx ответ в UpstreamError
func checkResponse(operation string, resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, &types.UpstreamError{Operation: operation, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &types.UpstreamError{
			Operation:  operation,
			StatusCode: resp.StatusCode(),
			Body:       types.Truncate(strings.TrimSpace(string(resp.Body())), maxErrorBody),
		}
	}
	return resp.Body(), nil
}
