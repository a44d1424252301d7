package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mutugading/logquery/internal/application/logquery"
	"github.com/mutugading/logquery/internal/domain/logrecord"
)

const (
	pageKey = "logs:page:%s"

	defaultTTL = 30 * time.Second
)

// Verify interface implementation at compile time.
var _ logquery.PageCache = (*PageCache)(nil)

// PageCache caches log query results in Redis.
type PageCache struct {
	client *Client
	ttl    time.Duration
}

// NewPageCache creates a new PageCache. A non-positive ttl uses the default.
func NewPageCache(client *Client, ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &PageCache{client: client, ttl: ttl}
}

// pageCacheData is the cached representation of a page.
type pageCacheData struct {
	Logs       []logCacheData `json:"logs"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalRows  int64          `json:"total_rows"`
	TotalPages int64          `json:"total_pages"`
}

type logCacheData struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// GetPage retrieves a cached page.
func (c *PageCache) GetPage(ctx context.Context, key string) (*logrecord.Page, bool, error) {
	cacheKey := fmt.Sprintf(pageKey, key)
	data, err := c.client.Get(ctx, cacheKey)
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached pageCacheData
	if err := json.Unmarshal(data, &cached); err != nil {
		log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to unmarshal cached log page")
		return nil, false, err
	}

	page, err := c.toPage(&cached)
	if err != nil {
		return nil, false, err
	}
	return page, true, nil
}

// SetPage caches a page.
func (c *PageCache) SetPage(ctx context.Context, key string, page *logrecord.Page) error {
	jsonData, err := json.Marshal(c.fromPage(page))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(pageKey, key), jsonData, c.ttl)
}

// Ping checks the underlying Redis connection.
func (c *PageCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c *PageCache) fromPage(page *logrecord.Page) *pageCacheData {
	data := &pageCacheData{
		Logs:       make([]logCacheData, 0, len(page.Logs)),
		Page:       page.Page,
		Limit:      page.Limit,
		TotalRows:  page.TotalRows,
		TotalPages: page.TotalPages,
	}
	for _, l := range page.Logs {
		data.Logs = append(data.Logs, logCacheData{
			ID:        l.ID().String(),
			Type:      l.Type(),
			Level:     l.Level(),
			Message:   l.Message(),
			CreatedAt: l.CreatedAt().Format(time.RFC3339Nano),
			UpdatedAt: l.UpdatedAt().Format(time.RFC3339Nano),
		})
	}
	return data
}

func (c *PageCache) toPage(data *pageCacheData) (*logrecord.Page, error) {
	logs := make([]*logrecord.Log, 0, len(data.Logs))
	for _, d := range data.Logs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
		if err != nil {
			return nil, err
		}
		updatedAt, err := time.Parse(time.RFC3339Nano, d.UpdatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, logrecord.ReconstructLog(id, d.Type, d.Level, d.Message, createdAt, updatedAt))
	}

	return &logrecord.Page{
		Logs:       logs,
		Page:       data.Page,
		Limit:      data.Limit,
		TotalRows:  data.TotalRows,
		TotalPages: data.TotalPages,
	}, nil
}
