package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// Run запускает HTTP сервер и, если задан порт, gRPC health сервер.
// Возвращается после отмены ctx (SIGINT/SIGTERM) или падения одного из серверов.
func (app *Application) Run(ctx context.Context) error {
	httpErrChan := make(chan error, 1)
	grpcErrChan := make(chan error, 1)

	// Запуск HTTP сервера
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", fmt.Sprintf("http://%s", app.server.Addr)))

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrChan <- err
		}
	}()

	// Запуск gRPC сервера
	if app.grpc != nil {
		go func() {
			if err := app.grpc.Run(app.config.GRPCPort); err != nil {
				grpcErrChan <- err
			}
		}()
		app.grpc.SetServing(true)
	}

	app.logger.Info("Relay started",
		zap.String("endpoints", app.String()),
		zap.Strings("allowed_origins", app.config.CORS.AllowedOrigins))

	// Ожидание сигнала завершения
	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutdown signal received")
	case err := <-httpErrChan:
		app.logger.Error("HTTP server failed", zap.Error(err))
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-grpcErrChan:
		app.logger.Error("gRPC server failed", zap.Error(err))
		runErr = fmt.Errorf("grpc server: %w", err)
	}

	if err := app.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown останавливает серверы, дожидаясь активных запросов не дольше shutdown_timeout
func (app *Application) Shutdown() error {
	timeout := app.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.logger.Info("Stopping servers", zap.Duration("timeout", timeout))

	if app.grpc != nil {
		app.grpc.SetServing(false)
	}

	var shutdownErr error
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
		shutdownErr = fmt.Errorf("http shutdown: %w", err)
	}

	if app.grpc != nil {
		app.grpc.Stop(shutdownCtx)
	}

	app.logger.Info("Relay stopped")
	return shutdownErr
}
