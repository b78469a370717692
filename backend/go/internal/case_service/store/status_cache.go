package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RoboSupport/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
)

// CachedStatus is a status probe result kept for a short while so repeated
// probes do not each drive a browser session against the portal.
type CachedStatus struct {
	Status   models.CaseStatus `json:"status"`
	Response string            `json:"response,omitempty"`
	At       time.Time         `json:"at"`
}

// StatusCache stores recent probe results. A miss returns (nil, nil).
type StatusCache interface {
	Get(ctx context.Context, taskNumber string) (*CachedStatus, error)
	Set(ctx context.Context, taskNumber string, status CachedStatus) error
}

// RedisStatusCache implements StatusCache on Redis with a fixed TTL.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusCache creates a cache whose entries expire after ttl.
func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(taskNumber string) string {
	return "case:status:" + taskNumber
}

func (c *RedisStatusCache) Get(ctx context.Context, taskNumber string) (*CachedStatus, error) {
	raw, err := c.client.Get(ctx, statusKey(taskNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var cs CachedStatus
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}
	return &cs, nil
}

// Set stores status unless it is unknown; unknown results are transient and
// the next probe should retry the portal.
func (c *RedisStatusCache) Set(ctx context.Context, taskNumber string, status CachedStatus) error {
	if status.Status == models.CaseUnknown {
		return nil
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	// Resolved is terminal.
	ttl := c.ttl
	if status.Status == models.CaseResolved {
		ttl = 24 * time.Hour
	}
	if err := c.client.Set(ctx, statusKey(taskNumber), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
