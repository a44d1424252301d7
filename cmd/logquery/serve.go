package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	grpcdelivery "github.com/mutugading/logquery/internal/delivery/grpc"
	httpdelivery "github.com/mutugading/logquery/internal/delivery/http"
	"github.com/mutugading/logquery/internal/infrastructure/tracing"
)

const readinessInterval = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the optional gRPC health endpoint)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	log.Info().
		Str("service", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Env).
		Msg("Starting log query service")

	cleanupTracing := setupTracing(ctx, a)
	defer cleanupTracing()

	var grpcServer *grpcdelivery.Server
	if cfg.Server.GRPCEnabled {
		grpcServer = grpcdelivery.NewServer(&cfg.Server)
	}

	deps := map[string]httpdelivery.Pinger{"database": a.db.Health}
	if a.cachePing != nil {
		deps["cache"] = a.cachePing
	}
	checker := httpdelivery.NewReadinessChecker(deps, readinessInterval, func(up bool) {
		if !up {
			log.Warn().Msg("Service is not ready")
		}
		if grpcServer != nil {
			grpcServer.SetServing(up)
		}
	})
	defer checker.Stop()

	handler := httpdelivery.NewLogHandler(a.builder, a.service, a.exporter)
	limiter := httpdelivery.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	httpServer, err := httpdelivery.NewServer(ctx, &cfg.Server, handler, httpdelivery.ReadinessHandler(checker), limiter)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	if grpcServer != nil {
		go func() {
			errCh <- wrapf(grpcServer.Start(), "gRPC server failed")
		}()
	}
	go func() {
		errCh <- wrapf(httpServer.Start(), "HTTP server failed")
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down servers...")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("Server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}

	log.Info().Msg("Server shutdown complete")
	return serveErr
}

// setupTracing initializes tracing and returns a cleanup function.
func setupTracing(ctx context.Context, a *app) func() {
	provider, err := tracing.NewProvider(ctx, &a.cfg.Tracing, &a.cfg.App)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to setup tracing, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown tracing provider")
		}
	}
}
