package presence

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry with TTL expiry. Suitable for
// tests and single-node deployments.
type MemoryRegistry struct {
	mu     sync.RWMutex
	ttl    time.Duration
	clock  func() time.Time
	agents map[string]map[string]Agent // tenant -> agent id -> record
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryRegistry{
		ttl:    ttl,
		clock:  time.Now,
		agents: make(map[string]map[string]Agent),
	}
}

// WithClock overrides the time source. Test helper.
func (r *MemoryRegistry) WithClock(clock func() time.Time) *MemoryRegistry {
	r.clock = clock
	return r
}

func (r *MemoryRegistry) Heartbeat(_ context.Context, tenantID string, agent Agent) error {
	if tenantID == "" || agent.AgentID == "" {
		return errors.New("presence: tenant and agent ids required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.agents[tenantID]
	if !ok {
		t = make(map[string]Agent)
		r.agents[tenantID] = t
	}
	agent.LastSeen = r.clock()
	t[agent.AgentID] = agent
	return nil
}

func (r *MemoryRegistry) Available(_ context.Context, tenantID string) ([]Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := r.clock().Add(-r.ttl)
	var out []Agent
	for _, a := range r.agents[tenantID] {
		if a.Available && a.LastSeen.After(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) IsAvailable(_ context.Context, tenantID, agentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[tenantID][agentID]
	if !ok {
		return false, nil
	}
	return a.Available && a.LastSeen.After(r.clock().Add(-r.ttl)), nil
}
