package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Audit capture is best-effort; do not block call flow on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// CallID is the internal call the record concerns.
	CallID string `json:"call_id,omitempty" db:"call_id"`
	// Provider identifies the originating telephony backend for call events.
	Provider string `json:"provider,omitempty" db:"provider"`

	// AgentID is the authenticated agent causing the event (agent actions).
	AgentID string `json:"agent_id,omitempty" db:"agent_id"`
	// Action is the agent action name (answer, hold, transfer, ...).
	Action string `json:"action,omitempty" db:"action"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata holds the raw provider payload or extra JSON details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallEvent   EventType = "call_event"
	EventTypeAgentAction EventType = "agent_action"
)
