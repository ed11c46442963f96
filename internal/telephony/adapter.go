package telephony

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Adapter is the provider-agnostic boundary contract.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Adapters validate signature/auth BEFORE parsing; an unauthenticated
//   payload never reaches the parser.
// - Adapters translate wire formats only; routing and ownership decisions
//   belong to internal/callqueue.
type Adapter interface {
	Type() ProviderType

	// ParseWebhook validates and translates one provider callback.
	// Returns AuthError for failed signature/token checks and ParseError for
	// malformed or unattributable payloads; both mean "drop, no state change".
	ParseWebhook(ctx context.Context, req WebhookRequest, cfg ProviderConfig) (NormalizedCallEvent, error)

	// PlaceOutboundCall asks the provider to originate a call.
	PlaceOutboundCall(ctx context.Context, req OutboundCallRequest, cfg ProviderConfig) (CallResult, error)

	// SendControlAction drives an existing call at the provider.
	SendControlAction(ctx context.Context, externalCallID string, action ControlAction, cfg ProviderConfig) (CallResult, error)
}

// WebhookRequest carries the raw inbound callback. Handlers read the body
// before calling adapters so signature checks can cover the exact bytes.
type WebhookRequest struct {
	Headers     http.Header
	Body        []byte
	ContentType string
}

type OutboundCallRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ControlAction is a provider-directed command for a live call.
type ControlAction string

const (
	ActionAnswer   ControlAction = "answer"
	ActionHold     ControlAction = "hold"
	ActionResume   ControlAction = "resume"
	ActionTransfer ControlAction = "transfer"
	ActionHangup   ControlAction = "hangup"
)

// CallResult is the outcome of an outbound or control request.
// Retryable distinguishes transient transport failures (caller may retry
// with backoff) from permanent provider-side rejections.
type CallResult struct {
	Success        bool   `json:"success"`
	Retryable      bool   `json:"retryable"`
	ExternalCallID string `json:"external_call_id,omitempty"`
	ProviderStatus string `json:"provider_status,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Registry holds one adapter per provider type. Adding a provider means
// adding a variant, not extending a switch.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ProviderType]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[ProviderType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Type()] = a
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

func (r *Registry) Get(pt ProviderType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[pt]
	if !ok {
		return nil, fmt.Errorf("telephony: no adapter registered for provider %q", pt)
	}
	return a, nil
}
