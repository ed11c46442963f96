package callqueue

import (
	"time"

	"callcenter-routing/internal/telephony"
)

// CallQueueItem is one live or recently-completed call.
//
// Invariants:
// - Exactly one item per (provider_type, external_call_id).
// - AnsweredBy is set iff Status is answered, on_hold, or transferred
//   (outbound calls excepted while still ringing; see Direction).
// - QueuePosition is non-nil iff Status is queued or ringing, and positions
//   within a tenant form a contiguous 1..K sequence.
// - Terminal statuses are immutable.
type CallQueueItem struct {
	ID             string                 `json:"id" db:"id"`
	TenantID       string                 `json:"tenant_id" db:"tenant_id"`
	ProviderType   telephony.ProviderType `json:"provider_type" db:"provider_type"`
	ExternalCallID string                 `json:"external_call_id" db:"external_call_id"`
	PhoneNumberID  string                 `json:"phone_number_id,omitempty" db:"phone_number_id"`

	Direction Direction `json:"direction" db:"direction"`
	// PlacedBy is the agent who originated an outbound call. Empty for
	// inbound calls; ownership is assumed on provider-confirmed pickup.
	PlacedBy string `json:"placed_by,omitempty" db:"placed_by"`

	CallerPhone   string `json:"caller_phone" db:"caller_phone"`
	CallerName    string `json:"caller_name,omitempty" db:"caller_name"`
	CallerAddress string `json:"caller_address,omitempty" db:"caller_address"`

	Priority Priority `json:"priority" db:"priority"`
	CallType CallType `json:"call_type" db:"call_type"`

	Status Status `json:"status" db:"status"`
	// ProviderStatus preserves the last provider-native status string.
	ProviderStatus string `json:"provider_status,omitempty" db:"provider_status"`

	AnsweredBy    string     `json:"answered_by,omitempty" db:"answered_by"`
	TransferredTo string     `json:"transferred_to,omitempty" db:"transferred_to"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	TransferredAt *time.Time `json:"transferred_at,omitempty" db:"transferred_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	QueuePosition   *int `json:"queue_position,omitempty" db:"queue_position"`
	WaitTimeSeconds *int `json:"wait_time_seconds,omitempty" db:"wait_time_seconds"`

	DurationSeconds int    `json:"duration_seconds,omitempty" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusRinging     Status = "ringing"
	StatusAnswered    Status = "answered"
	StatusOnHold      Status = "on_hold"
	StatusTransferred Status = "transferred"
	StatusCompleted   Status = "completed"
	StatusMissed      Status = "missed"
	StatusAbandoned   Status = "abandoned"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is immutable once reached.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusMissed, StatusAbandoned, StatusFailed:
		return true
	default:
		return false
	}
}

// Live reports whether the call still occupies a queue position.
func (s Status) Live() bool {
	return s == StatusQueued || s == StatusRinging
}

// Owned reports whether the status requires a non-empty AnsweredBy.
func (s Status) Owned() bool {
	switch s {
	case StatusAnswered, StatusOnHold, StatusTransferred:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities for the queue policy; higher sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Escalate raises the priority one level. Urgent stays urgent.
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

type CallType string

const (
	CallTypeSales       CallType = "sales"
	CallTypeSupport     CallType = "support"
	CallTypeAppointment CallType = "appointment"
	CallTypeComplaint   CallType = "complaint"
	CallTypeGeneral     CallType = "general"
	CallTypeInternal    CallType = "internal"
)

func (t CallType) Valid() bool {
	switch t {
	case CallTypeSales, CallTypeSupport, CallTypeAppointment, CallTypeComplaint, CallTypeGeneral, CallTypeInternal:
		return true
	default:
		return false
	}
}
