package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/finadvisor/internal/metrics"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// OutlookKey is the Redis key holding the last computed outlook
const OutlookKey = "market:outlook"

// OutlookCache provides Redis-based caching for the summarized market outlook
type OutlookCache struct {
	client *redis.Client
	ttl    time.Duration
}

// outlookEntry is a cached outlook with metadata
type outlookEntry struct {
	Outlook   portfolio.MarketOutlook `json:"outlook"`
	Timestamp time.Time               `json:"timestamp"`
}

// NewOutlookCache creates a new Redis-based outlook cache.
// If client is nil, returns nil (optional Redis support)
func NewOutlookCache(client *redis.Client, ttl time.Duration) *OutlookCache {
	if client == nil {
		return nil
	}

	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &OutlookCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the outlook from cache.
// Returns false when not found or on any Redis error.
func (c *OutlookCache) Get(ctx context.Context) (portfolio.MarketOutlook, bool) {
	if c == nil || c.client == nil {
		return portfolio.MarketOutlook{}, false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, OutlookKey).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().
				Err(err).
				Str("key", OutlookKey).
				Msg("Redis get error - treating as cache miss")
		}
		metrics.RecordCacheLookup(false)
		return portfolio.MarketOutlook{}, false
	}

	var entry outlookEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().
			Err(err).
			Str("key", OutlookKey).
			Msg("Failed to unmarshal cached outlook")
		metrics.RecordCacheLookup(false)
		return portfolio.MarketOutlook{}, false
	}
	if entry.Outlook.Watch == nil {
		entry.Outlook.Watch = []string{}
	}

	log.Debug().
		Str("sentiment", string(entry.Outlook.Sentiment)).
		Time("cached_at", entry.Timestamp).
		Msg("Cache hit for market outlook")

	metrics.RecordCacheLookup(true)
	return entry.Outlook, true
}

// Set stores the outlook with the configured TTL
func (c *OutlookCache) Set(ctx context.Context, outlook portfolio.MarketOutlook) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	data, err := json.Marshal(outlookEntry{Outlook: outlook, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal outlook entry: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, OutlookKey, data, c.ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("key", OutlookKey).
			Msg("Failed to cache market outlook")
		return err
	}

	log.Debug().
		Str("sentiment", string(outlook.Sentiment)).
		Dur("ttl", c.ttl).
		Msg("Cached market outlook")

	return nil
}

// Delete removes the cached outlook
func (c *OutlookCache) Delete(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Del(cacheCtx, OutlookKey).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Health checks if the Redis connection is healthy
func (c *OutlookCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}
