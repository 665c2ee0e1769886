package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// SnapshotCache holds projected ticket snapshots. It is strictly a cache:
// the ChangeLog remains the source of truth and a miss is never an error.
type SnapshotCache interface {
	Get(ctx context.Context, repository string, number int64) (*domain.Ticket, bool)
	Put(ctx context.Context, ticket *domain.Ticket)
	Invalidate(ctx context.Context, repository string, number int64)
}

type redisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache builds a redis-backed snapshot cache.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) SnapshotCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &redisSnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(repository string, number int64) string {
	return fmt.Sprintf("ticket:%s:%d", repository, number)
}

func (c *redisSnapshotCache) Get(ctx context.Context, repository string, number int64) (*domain.Ticket, bool) {
	if c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, snapshotKey(repository, number)).Bytes()
	if err != nil {
		return nil, false
	}
	var ticket domain.Ticket
	if err := json.Unmarshal(payload, &ticket); err != nil {
		return nil, false
	}
	return &ticket, true
}

func (c *redisSnapshotCache) Put(ctx context.Context, ticket *domain.Ticket) {
	if c.client == nil || ticket == nil {
		return
	}
	payload, err := json.Marshal(ticket)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, snapshotKey(ticket.Repository, ticket.Number), payload, c.ttl).Err()
}

func (c *redisSnapshotCache) Invalidate(ctx context.Context, repository string, number int64) {
	if c.client == nil {
		return
	}
	_ = c.client.Del(ctx, snapshotKey(repository, number)).Err()
}
