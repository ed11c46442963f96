package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans snapshots out over redis pub/sub so other API nodes
// can feed their own local subscriber hubs.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.rdb.Publish(ctx, topic, payload).Err()
}

func (p *RedisPublisher) Close() error { return nil }
