// Package grpc provides the gRPC health endpoint.
package grpc

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/mutugading/logquery/internal/infrastructure/config"
)

// Server represents the gRPC server.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	config       *config.ServerConfig
}

// NewServer creates a new gRPC server exposing grpc.health.v1.Health. The
// status starts as NOT_SERVING until SetServing reports healthy storage.
func NewServer(cfg *config.ServerConfig) *Server {
	unaryChain := grpc.ChainUnaryInterceptor(
		RequestIDInterceptor(),
		MetricsInterceptor(),
		LoggingInterceptor(),
		RecoveryInterceptor(),
		TimeoutInterceptor(10*time.Second),
	)

	opts := []grpc.ServerOption{
		unaryChain,
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             1 * time.Minute,
			PermitWithoutStream: true,
		}),
	}

	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	reflection.Register(grpcServer)

	return &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		config:       cfg,
	}
}

// SetServing updates the reported health status.
func (s *Server) SetServing(up bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if up {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)

	log.Info().Str("status", status.String()).Msg("gRPC health status changed")
}

// Start listens on the configured port and serves until Stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.GRPCPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	log.Info().
		Int("port", s.config.GRPCPort).
		Str("address", addr).
		Msg("gRPC server starting")

	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	return s.grpcServer.Serve(listener)
}

// Stop marks the server as shutting down and stops it gracefully.
func (s *Server) Stop() {
	log.Info().Msg("gRPC server stopping...")
	s.healthServer.Shutdown()
	s.grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")
}
