// Package cache holds tenant-scoped copies of settings reference data.
// Entries are keyed by (tenant, kind) and dropped wholesale on any settings write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reference data kinds.
const (
	KindCategories = "categories"
	KindWorkflows  = "workflows"
	KindMatrices   = "matrices"
)

// ReferenceCache stores JSON-encoded reference lists per tenant.
type ReferenceCache interface {
	// Get decodes the cached value into dest and reports whether it was present.
	Get(ctx context.Context, orgID, kind string, dest any) (bool, error)
	Set(ctx context.Context, orgID, kind string, value any) error
	InvalidateTenant(ctx context.Context, orgID string) error
}

// Memory is a process-local cache.
type Memory struct {
	mu          sync.RWMutex
	entries     map[string][]byte
	tenantIndex map[string]map[string]struct{}
}

// NewMemory returns an empty cache.
func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string][]byte),
		tenantIndex: make(map[string]map[string]struct{}),
	}
}

func (c *Memory) Get(_ context.Context, orgID, kind string, dest any) (bool, error) {
	c.mu.RLock()
	raw, ok := c.entries[entryKey(orgID, kind)]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *Memory) Set(_ context.Context, orgID, kind string, value any) error {
	if orgID == "" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := entryKey(orgID, kind)
	c.entries[key] = raw
	if _, ok := c.tenantIndex[orgID]; !ok {
		c.tenantIndex[orgID] = make(map[string]struct{})
	}
	c.tenantIndex[orgID][key] = struct{}{}
	return nil
}

func (c *Memory) InvalidateTenant(_ context.Context, orgID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tenantIndex[orgID] {
		delete(c.entries, key)
	}
	delete(c.tenantIndex, orgID)
	return nil
}

func entryKey(orgID, kind string) string {
	return orgID + "|" + kind
}

// Redis keeps one hash per tenant so invalidation is a single DEL.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache. A zero ttl keeps entries until invalidated.
func NewRedis(client redis.Cmdable, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "change-service"
	}
	return &Redis{client: client, prefix: keyPrefix, ttl: ttl}
}

func (c *Redis) key(orgID string) string {
	return fmt.Sprintf("%s:ref:%s", c.prefix, orgID)
}

func (c *Redis) Get(ctx context.Context, orgID, kind string, dest any) (bool, error) {
	raw, err := c.client.HGet(ctx, c.key(orgID), kind).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *Redis) Set(ctx context.Context, orgID, kind string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := c.key(orgID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, kind, raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Redis) InvalidateTenant(ctx context.Context, orgID string) error {
	return c.client.Del(ctx, c.key(orgID)).Err()
}
