// Package sequence mints human-readable, per-tenant sequential identifiers.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Changes is the sequence name used for change request numbers.
const Changes = "changes"

// Generator returns the next identifier of a named sequence for a tenant.
type Generator interface {
	Next(ctx context.Context, orgID, name string) (string, error)
}

// Format renders n with the prefix configured for name, e.g. CHG-000042.
func Format(name string, n int64) string {
	prefix := strings.ToUpper(name)
	if name == Changes {
		prefix = "CHG"
	}
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// Memory is a process-local generator.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemory creates an empty in-memory generator.
func NewMemory() *Memory {
	return &Memory{counters: make(map[string]int64)}
}

// Next increments the tenant's counter.
func (m *Memory) Next(_ context.Context, orgID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orgID + "/" + name
	m.counters[key]++
	return Format(name, m.counters[key]), nil
}

// Redis backs sequences with INCR so every replica shares one counter.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates a generator storing counters under keyPrefix.
func NewRedis(client redis.Cmdable, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "change-service"
	}
	return &Redis{client: client, prefix: keyPrefix}
}

// Next atomically increments the tenant's counter.
func (r *Redis) Next(ctx context.Context, orgID, name string) (string, error) {
	key := fmt.Sprintf("%s:seq:%s:%s", r.prefix, orgID, name)
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", name, err)
	}
	return Format(name, n), nil
}
