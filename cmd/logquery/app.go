package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mutugading/logquery/internal/application/logquery"
	"github.com/mutugading/logquery/internal/infrastructure/config"
	"github.com/mutugading/logquery/internal/infrastructure/database"
	"github.com/mutugading/logquery/internal/infrastructure/memcache"
	redisinfra "github.com/mutugading/logquery/internal/infrastructure/redis"
	"github.com/mutugading/logquery/pkg/circuitbreaker"
	"github.com/mutugading/logquery/pkg/logger"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	db       *database.DB
	repo     *database.LogRepository
	builder  logquery.Builder
	service  *logquery.Service
	exporter *logquery.ExportHandler

	// cachePing is set when a shared cache takes part in readiness.
	cachePing func(ctx context.Context) error
	closers   []func()
}

// newApp loads configuration and wires storage, cache and the query service.
// Logs go to logOut.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Setup(logOut, cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.PrettyJSON)

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		repo:    database.NewLogRepository(db, cfg.Database.Table),
		builder: logquery.NewBuilder(cfg.Query.DefaultLimit, cfg.Query.MaxLimit),
	}
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database connection")
		}
	})

	opts := []logquery.Option{}
	if cache := a.setupCache(); cache != nil {
		opts = append(opts, logquery.WithCache(cache))
	}
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.Breaker.Enabled {
		breaker = newBreaker(&cfg.Breaker)
		opts = append(opts, logquery.WithCircuitBreaker(breaker))
	}

	a.service = logquery.NewService(a.repo, opts...)
	a.exporter = logquery.NewExportHandler(a.repo, cfg.Query.ExportMaxRows, breaker)

	return a, nil
}

// setupCache creates the configured page cache. Redis is optional: when it
// cannot be reached the service runs without a cache.
func (a *app) setupCache() logquery.PageCache {
	cfg := a.cfg
	if !cfg.Cache.Enabled {
		return nil
	}

	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		cache := memcache.NewPageCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		a.closers = append(a.closers, cache.Close)
		log.Info().Dur("ttl", cfg.Cache.TTL).Msg("In-memory page cache enabled")
		return cache

	case config.CacheBackendRedis:
		client, err := redisinfra.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, continuing without cache")
			return nil
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis connection")
			}
		})
		cache := redisinfra.NewPageCache(client, cfg.Cache.TTL)
		a.cachePing = cache.Ping

		log.Info().
			Str("address", cfg.Redis.Address()).
			Dur("ttl", cfg.Cache.TTL).
			Msg("Redis page cache enabled")
		return cache
	}

	return nil
}

func newBreaker(cfg *config.BreakerConfig) *circuitbreaker.CircuitBreaker {
	settings := circuitbreaker.DefaultSettings("log-storage")
	if cfg.MaxFailures > 0 {
		settings.MaxFailures = cfg.MaxFailures
	}
	if cfg.OpenTimeout > 0 {
		settings.OpenTimeout = cfg.OpenTimeout
	}
	settings.OnStateChange = func(name string, from, to circuitbreaker.State) {
		log.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}
	return circuitbreaker.New(settings)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
