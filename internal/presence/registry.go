package presence

import (
	"context"
	"time"
)

// Agent is one console's presence record within a tenant.
type Agent struct {
	AgentID   string    `json:"agent_id"`
	Extension string    `json:"extension,omitempty"`
	Available bool      `json:"available"`
	LastSeen  time.Time `json:"last_seen"`
}

// Registry tracks which agents are currently reachable, refreshed by
// console heartbeats with TTL expiry. It is read-mostly shared state: the
// transfer coordinator consults it and never mutates it.
type Registry interface {
	// Heartbeat refreshes one agent's presence and availability flag.
	Heartbeat(ctx context.Context, tenantID string, agent Agent) error

	// Available lists agents whose heartbeat has not expired and who are
	// flagged available.
	Available(ctx context.Context, tenantID string) ([]Agent, error)

	// IsAvailable reports whether one agent is currently available.
	IsAvailable(ctx context.Context, tenantID, agentID string) (bool, error)
}
