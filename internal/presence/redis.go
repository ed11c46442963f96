package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores presence records as per-agent keys with a TTL, so
// expiry needs no sweeper: a missed heartbeat simply lets the key lapse.
//
// Keys: presence:{tenant_id}:{agent_id} -> JSON Agent, EX ttl.
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisRegistry{rdb: rdb, ttl: ttl}
}

func presenceKey(tenantID, agentID string) string {
	return fmt.Sprintf("presence:%s:%s", tenantID, agentID)
}

func (r *RedisRegistry) Heartbeat(ctx context.Context, tenantID string, agent Agent) error {
	if tenantID == "" || agent.AgentID == "" {
		return errors.New("presence: tenant and agent ids required")
	}
	agent.LastSeen = time.Now().UTC()
	payload, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, presenceKey(tenantID, agent.AgentID), payload, r.ttl).Err()
}

func (r *RedisRegistry) Available(ctx context.Context, tenantID string) ([]Agent, error) {
	var out []Agent
	iter := r.rdb.Scan(ctx, 0, presenceKey(tenantID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, err
		}
		var a Agent
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		if a.Available {
			out = append(out, a)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisRegistry) IsAvailable(ctx context.Context, tenantID, agentID string) (bool, error) {
	raw, err := r.rdb.Get(ctx, presenceKey(tenantID, agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var a Agent
	if err := json.Unmarshal(raw, &a); err != nil {
		return false, err
	}
	return a.Available, nil
}
