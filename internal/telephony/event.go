package telephony

import "time"

// ProviderType identifies which backend a call or event originated from.
// Dispatch between adapters is ALWAYS by provider type, never by payload shape.
type ProviderType string

const (
	ProviderHostedGateway ProviderType = "hosted_gateway"
	ProviderSIPPBX        ProviderType = "sip_pbx"
	ProviderMock          ProviderType = "mock"
)

func (p ProviderType) Valid() bool {
	switch p {
	case ProviderHostedGateway, ProviderSIPPBX, ProviderMock:
		return true
	default:
		return false
	}
}

// EventType is the canonical telephony event vocabulary. Every adapter maps
// its native callbacks into exactly one of these.
type EventType string

const (
	EventIncoming  EventType = "incoming"
	EventRinging   EventType = "ringing"
	EventAnswered  EventType = "answered"
	EventHold      EventType = "hold"
	EventTransfer  EventType = "transfer"
	EventEnded     EventType = "ended"
	EventRecording EventType = "recording"
	EventFailed    EventType = "failed"
)

// NormalizedCallEvent is the canonical unit crossing the adapter boundary.
//
// ProviderStatus preserves the provider-native status string for audit;
// business logic must branch on EventType only.
type NormalizedCallEvent struct {
	EventType      EventType `json:"event_type"`
	ExternalCallID string    `json:"external_call_id"`

	CallerPhone  string `json:"caller_phone"`
	CallerName   string `json:"caller_name,omitempty"`
	CalledNumber string `json:"called_number"`

	ProviderStatus  string `json:"provider_status,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`

	// OccurredAt is the provider event time when the payload carries one;
	// zero means "use receipt time".
	OccurredAt time.Time `json:"occurred_at,omitempty"`

	// RawPayload is kept for debugging/audit; store as JSON string.
	RawPayload string `json:"raw_payload,omitempty"`
}
