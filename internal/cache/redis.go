// Package cache wraps Redis for the dictionary's two cacheable surfaces:
// hierarchy pre-flight counts and remote concept lookups.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// Client wraps a Redis client with JSON serialization
type Client struct {
	redis      *redis.Client
	defaultTTL time.Duration
	countTTL   time.Duration
	log        *logrus.Logger
}

// NewClient creates a new cache client
func NewClient(config domain.CacheConfig, countTTL time.Duration, logger *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if countTTL <= 0 {
		countTTL = config.DefaultTTL
	}

	return &Client{
		redis:      client,
		defaultTTL: config.DefaultTTL,
		countTTL:   countTTL,
		log:        logger,
	}, nil
}

func countKey(conceptID int64, maxUp, maxDown int) string {
	return fmt.Sprintf("hierarchy:count:%d:%d:%d", conceptID, maxUp, maxDown)
}

func conceptKey(conceptID int64) string {
	return fmt.Sprintf("athena:concept:%d", conceptID)
}

// GetCount retrieves a cached hierarchy count. Cache failures degrade to a
// miss.
func (c *Client) GetCount(ctx context.Context, conceptID int64, maxUp, maxDown int) (*domain.HierarchyCount, bool) {
	val, err := c.redis.Get(ctx, countKey(conceptID, maxUp, maxDown)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).Warn("Hierarchy count cache read failed")
		return nil, false
	}

	var count domain.HierarchyCount
	if err := json.Unmarshal([]byte(val), &count); err != nil {
		c.log.WithError(err).Warn("Corrupt hierarchy count cache entry")
		return nil, false
	}
	return &count, true
}

// SetCount caches a hierarchy count under the concept and bounds.
func (c *Client) SetCount(ctx context.Context, conceptID int64, maxUp, maxDown int, count *domain.HierarchyCount) {
	data, err := json.Marshal(count)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, countKey(conceptID, maxUp, maxDown), data, c.countTTL).Err(); err != nil {
		c.log.WithError(err).Warn("Hierarchy count cache write failed")
	}
}

// GetConcept retrieves a cached remote concept lookup.
func (c *Client) GetConcept(ctx context.Context, conceptID int64) (*domain.Concept, bool, error) {
	val, err := c.redis.Get(ctx, conceptKey(conceptID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get concept cache: %w", err)
	}

	var concept domain.Concept
	if err := json.Unmarshal([]byte(val), &concept); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached concept: %w", err)
	}
	return &concept, true, nil
}

// SetConcept caches a remote concept lookup.
func (c *Client) SetConcept(ctx context.Context, concept *domain.Concept) error {
	data, err := json.Marshal(concept)
	if err != nil {
		return fmt.Errorf("failed to marshal concept: %w", err)
	}
	if err := c.redis.Set(ctx, conceptKey(concept.ConceptID), data, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set concept cache: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
