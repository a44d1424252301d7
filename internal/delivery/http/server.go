// Package http provides the HTTP API, health endpoints, metrics and Swagger.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/mutugading/logquery/internal/infrastructure/config"
)

// Server represents the HTTP server.
type Server struct {
	server  *http.Server
	handler http.Handler
	config  *config.ServerConfig
}

// NewServer creates a new HTTP server. ready serves /readyz; limiter may be
// nil to disable rate limiting.
func NewServer(
	ctx context.Context,
	cfg *config.ServerConfig,
	logs *LogHandler,
	ready http.Handler,
	limiter *rate.Limiter,
) (*Server, error) {
	doc, err := LoadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	specJSON, err := openAPIJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render openapi document: %w", err)
	}

	mux := http.NewServeMux()

	// API routes
	limit := RateLimit(limiter)
	mux.Handle("GET /logs", limit(http.HandlerFunc(logs.List)))
	mux.Handle("GET /logs/{$}", limit(http.HandlerFunc(logs.List)))
	mux.Handle("GET /logs/export", limit(http.HandlerFunc(logs.Export)))

	// Health check endpoints
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("GET /livez", liveHandler)
	mux.Handle("GET /readyz", ready)

	// Metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	// Swagger UI
	mux.HandleFunc("GET /swagger/", swaggerHandler)
	mux.HandleFunc("GET /swagger.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(specJSON)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Content-Disposition"},
		MaxAge:         300,
	}).Handler(gzhttp.GzipHandler(mux))

	handler := withMiddleware(corsHandler)
	handler = otelhttp.NewHandler(handler, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeLabel(r.URL.Path)
		}),
	)

	return &Server{
		handler: handler,
		config:  cfg,
	}, nil
}

// withMiddleware wraps h so that recovered panics still carry the request id
// and are logged and counted like any other response.
func withMiddleware(h http.Handler) http.Handler {
	return Chain(h,
		RequestID(),
		Metrics(),
		Logging(),
		Recovery(),
	)
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server. It returns nil after Stop.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	log.Info().
		Int("port", s.config.HTTPPort).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Health handlers
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"live"}`))
}

func swaggerHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(swaggerUIHTML))
}

const swaggerUIHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Log Query Service API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "/swagger.json",
                dom_id: '#swagger-ui',
                presets: [SwaggerUIBundle.presets.apis],
                layout: "BaseLayout"
            });
        };
    </script>
</body>
</html>`
