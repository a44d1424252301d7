package logquery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mutugading/logquery/internal/domain/logrecord"
	"github.com/mutugading/logquery/pkg/circuitbreaker"
)

const tracerName = "github.com/mutugading/logquery/internal/application/logquery"

// PageCache stores query results keyed by a normalized query.
type PageCache interface {
	// GetPage returns the cached page. A miss is reported as (nil, false, nil).
	GetPage(ctx context.Context, key string) (*logrecord.Page, bool, error)

	// SetPage stores page under key.
	SetPage(ctx context.Context, key string, page *logrecord.Page) error
}

// Service executes queries against the log store.
type Service struct {
	repo    logrecord.Repository
	cache   PageCache
	breaker *circuitbreaker.CircuitBreaker
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching.
func WithCache(cache PageCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithCircuitBreaker guards each query with cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = cb
	}
}

// NewService creates a new Service.
func NewService(repo logrecord.Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List counts the records matching q.Filter and fetches the requested page.
// Any storage failure aborts the whole request with a *logrecord.StorageError.
func (s *Service) List(ctx context.Context, q Query) (*logrecord.Page, error) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "logquery.List")
	defer span.End()
	span.SetAttributes(
		attribute.Int("logquery.page", q.Page.Page),
		attribute.Int("logquery.limit", q.Page.Limit),
		attribute.Bool("logquery.filtered", !q.Filter.IsEmpty()),
	)

	var key string
	if s.cache != nil {
		key = CacheKey(q)
		if page := s.cachedPage(ctx, key); page != nil {
			span.SetAttributes(attribute.Bool("logquery.cache_hit", true))
			observeQuery("cache", start)
			return page, nil
		}
	}

	var (
		total int64
		logs  []*logrecord.Log
	)

	// One breaker call covers both reads, so a half-open trial runs the whole request.
	err := guardStorage(ctx, s.breaker, "list", func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			n, err := s.repo.Count(gctx, q.Filter)
			if err != nil {
				return newStorageError("count", err)
			}
			total = n
			return nil
		})
		g.Go(func() error {
			found, err := s.repo.Find(gctx, q.Filter, q.Page)
			if err != nil {
				return newStorageError("find", err)
			}
			logs = found
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failure")
		observeQuery("error", start)
		return nil, err
	}

	if logs == nil {
		logs = []*logrecord.Log{}
	}

	page := &logrecord.Page{
		Logs:       logs,
		Page:       q.Page.Page,
		Limit:      q.Page.Limit,
		TotalRows:  total,
		TotalPages: logrecord.TotalPages(total, q.Page.Limit),
	}

	if s.cache != nil {
		if err := s.cache.SetPage(ctx, key, page); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache log page")
		}
	}

	span.SetAttributes(attribute.Int64("logquery.total_rows", total))
	observeQuery("storage", start)
	return page, nil
}

// guardStorage runs fn through cb when one is configured. Errors not already
// classified are wrapped as a storage failure of op.
func guardStorage(ctx context.Context, cb *circuitbreaker.CircuitBreaker, op string, fn func(ctx context.Context) error) error {
	var err error
	if cb != nil {
		err = cb.Execute(ctx, fn)
	} else {
		err = fn(ctx)
	}
	if err == nil {
		return nil
	}
	var serr *logrecord.StorageError
	if errors.As(err, &serr) {
		return err
	}
	return newStorageError(op, err)
}

func newStorageError(op string, err error) error {
	storageErrorsTotal.WithLabelValues(op).Inc()
	return logrecord.NewStorageError(op, err)
}

func (s *Service) cachedPage(ctx context.Context, key string) *logrecord.Page {
	page, ok, err := s.cache.GetPage(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to read log page cache, querying storage")
		cacheRequestsTotal.WithLabelValues("error").Inc()
		return nil
	}
	if !ok {
		cacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	cacheRequestsTotal.WithLabelValues("hit").Inc()
	return page
}

type cacheKeyFields struct {
	Level     string `json:"l"`
	Type      string `json:"t"`
	Message   string `json:"m"`
	From      string `json:"f"`
	To        string `json:"u"`
	Page      int    `json:"p"`
	Limit     int    `json:"n"`
	SortOrder string `json:"s"`
}

// CacheKey derives a stable key from the normalized query.
func CacheKey(q Query) string {
	f := q.Filter
	raw, _ := json.Marshal(cacheKeyFields{
		Level:     f.Level,
		Type:      f.Type,
		Message:   f.Message,
		From:      formatBound(f.CreatedFrom),
		To:        formatBound(f.CreatedTo),
		Page:      q.Page.Page,
		Limit:     q.Page.Limit,
		SortOrder: string(q.Page.SortOrder),
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
