package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"garden-relay/internal/config"
	"garden-relay/internal/detector"
	"garden-relay/internal/grpc_server"
	"garden-relay/internal/handler"
	"garden-relay/internal/metrics"
	"garden-relay/internal/signer"
	"garden-relay/internal/upstream"
)

// Dependencies - внешние зависимости relay, собранные один раз при старте
type Dependencies struct {
	Meetings handler.MeetingService
	Detector detector.Detector
	Metrics  *metrics.Metrics
}

// Application - основное приложение
type Application struct {
	config  *config.Config
	logger  *zap.Logger
	router  http.Handler
	server  *http.Server
	grpc    *grpc_server.HealthServer
	metrics *metrics.Metrics
	guard   *OriginGuard

	meetingHandler   *handler.MeetingHandler
	detectionHandler *handler.DetectionHandler
	streamHandler    *handler.StreamHandler
}

// BuildDependencies читает ключ подписи и создает клиента платформы и детектор.
// Ошибки здесь фатальны: процесс не должен стартовать без ключа или детектора.
func BuildDependencies(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	m := metrics.New()

	identity, err := signer.LoadIdentity(cfg.Upstream.ClientID, cfg.Upstream.PrivateKeyPath, cfg.Upstream.APIAddress)
	if err != nil {
		return nil, err
	}
	tokenSigner, err := signer.New(identity)
	if err != nil {
		return nil, err
	}

	client := upstream.NewClient(upstream.Options{
		APIAddress: cfg.Upstream.APIAddress,
		Timeout:    cfg.Upstream.Timeout,
		Observer:   m,
	}, tokenSigner, logger.Named("upstream"))

	d, err := detector.New(cfg.Detection, m, logger.Named("detector"))
	if err != nil {
		return nil, err
	}

	logger.Info("Dependencies ready",
		zap.String("client_id", identity.ClientID),
		zap.String("token_endpoint", identity.TokenEndpoint),
		zap.String("detector", d.Name()))

	return &Dependencies{Meetings: client, Detector: d, Metrics: m}, nil
}

// NewApplicationWithConfig создает новое приложение с конфигурацией
func NewApplicationWithConfig(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	deps, err := BuildDependencies(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewApplication(cfg, deps, logger), nil
}

// NewApplication собирает хендлеры, роутер и серверы из готовых зависимостей
func NewApplication(cfg *config.Config, deps *Dependencies, logger *zap.Logger) *Application {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	guard := NewOriginGuard(cfg.CORS.AllowedOrigins, logger)

	// Создаем хендлеры
	meetingHandler := handler.NewMeetingHandler(logger, deps.Meetings, cfg.Upstream.APIAddress)
	detectionHandler := handler.NewDetectionHandler(logger, deps.Detector, cfg.Detection.MaxBodyBytes)
	streamHandler := handler.NewStreamHandler(logger, deps.Detector, cfg.Detection.MaxBodyBytes, guard.OriginAllowed, m)

	// Создаем роутер
	router := guard.Handler(NewRouter(meetingHandler, detectionHandler, streamHandler, m, logger))

	// Настраиваем HTTP сервер
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var grpcServer *grpc_server.HealthServer
	if cfg.GRPCPort > 0 {
		grpcServer = grpc_server.NewHealthServer(logger.Named("grpc"))
	}

	return &Application{
		config:           cfg,
		logger:           logger,
		router:           router,
		server:           server,
		grpc:             grpcServer,
		metrics:          m,
		guard:            guard,
		meetingHandler:   meetingHandler,
		detectionHandler: detectionHandler,
		streamHandler:    streamHandler,
	}
}

// GetRouter возвращает корневой HTTP обработчик вместе с CORS
func (app *Application) GetRouter() http.Handler {
	return app.router
}

// Metrics возвращает метрики приложения
func (app *Application) Metrics() *metrics.Metrics {
	return app.metrics
}

// String описывает адреса приложения для логов
func (app *Application) String() string {
	if app.grpc == nil {
		return fmt.Sprintf("http://%s", app.server.Addr)
	}
	return fmt.Sprintf("http://%s grpc=:%d", app.server.Addr, app.config.GRPCPort)
}
