package grpc_server

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName - имя сервиса в grpc.health.v1
const ServiceName = "garden-relay"

// HealthServer - gRPC сервер с health checking и reflection для оркестратора
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer создает сервер в состоянии NOT_SERVING; SetServing переводит его в SERVING
func NewHealthServer(logger *zap.Logger) *HealthServer {
	server := grpc.NewServer()
	healthServer := health.NewServer()

	grpc_health_v1.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		server: server,
		health: healthServer,
		logger: logger,
	}
}

// SetServing выставляет статус сервиса и общий статус сервера
func (s *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	s.logger.Info("gRPC health status changed", zap.String("status", status.String()))
}

// Run слушает порт и блокируется до остановки
func (s *HealthServer) Run(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", port, err)
	}
	return s.Serve(lis)
}

// Serve обслуживает переданный listener
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop переводит все сервисы в NOT_SERVING и ждет завершения активных RPC до истечения ctx
func (s *HealthServer) Stop(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("gRPC graceful stop timed out, forcing")
		s.server.Stop()
	}
}
