package telephony

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MockAdapter is a deterministic adapter for tests and local development.
// It accepts JSON payloads of the normalized shape, authenticated by a shared
// token header, and records every control action it is asked to send.
//
// Config keys:
//   token  shared secret for webhook auth (required)
type MockAdapter struct {
	mu      sync.Mutex
	placed  []OutboundCallRequest
	actions []MockAction

	// ControlResult, when set, is returned from SendControlAction; used to
	// exercise retry paths.
	ControlResult *CallResult
}

// MockAction records one SendControlAction invocation.
type MockAction struct {
	ExternalCallID string
	Action         ControlAction
}

const mockTokenHeader = "X-Mock-Token"

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Type() ProviderType { return ProviderMock }

type mockPayload struct {
	Event          string `json:"event"`
	ExternalCallID string `json:"external_call_id"`
	CallerPhone    string `json:"caller_phone"`
	CallerName     string `json:"caller_name"`
	CalledNumber   string `json:"called_number"`
	Status         string `json:"status"`
	Duration       int    `json:"duration_seconds"`
	RecordingURL   string `json:"recording_url"`
}

func (a *MockAdapter) ParseWebhook(_ context.Context, req WebhookRequest, cfg ProviderConfig) (NormalizedCallEvent, error) {
	token := cfg.Config["token"]
	if token == "" {
		return NormalizedCallEvent{}, &AuthError{Provider: a.Type(), Reason: "token not configured"}
	}
	got := strings.TrimSpace(req.Headers.Get(mockTokenHeader))
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return NormalizedCallEvent{}, &AuthError{Provider: a.Type(), Reason: "token mismatch"}
	}

	var p mockPayload
	if err := json.Unmarshal(req.Body, &p); err != nil {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "invalid json body"}
	}
	if p.ExternalCallID == "" {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "missing external_call_id"}
	}

	et := EventType(p.Event)
	switch et {
	case EventIncoming, EventRinging, EventAnswered, EventHold, EventTransfer, EventEnded, EventRecording, EventFailed:
	default:
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: fmt.Sprintf("unknown event %q", p.Event)}
	}

	status := p.Status
	if status == "" {
		status = p.Event
	}

	return NormalizedCallEvent{
		EventType:       et,
		ExternalCallID:  p.ExternalCallID,
		CallerPhone:     p.CallerPhone,
		CallerName:      p.CallerName,
		CalledNumber:    p.CalledNumber,
		ProviderStatus:  status,
		DurationSeconds: p.Duration,
		RecordingURL:    p.RecordingURL,
		RawPayload:      string(req.Body),
	}, nil
}

func (a *MockAdapter) PlaceOutboundCall(_ context.Context, req OutboundCallRequest, _ ProviderConfig) (CallResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placed = append(a.placed, req)
	return CallResult{Success: true, ExternalCallID: fmt.Sprintf("mock-out-%d", len(a.placed))}, nil
}

func (a *MockAdapter) SendControlAction(_ context.Context, externalCallID string, action ControlAction, _ ProviderConfig) (CallResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, MockAction{ExternalCallID: externalCallID, Action: action})
	if a.ControlResult != nil {
		return *a.ControlResult, nil
	}
	return CallResult{Success: true}, nil
}

// Actions returns a copy of all recorded control actions.
func (a *MockAdapter) Actions() []MockAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]MockAction, len(a.actions))
	copy(out, a.actions)
	return out
}

// Placed returns a copy of all recorded outbound placements.
func (a *MockAdapter) Placed() []OutboundCallRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]OutboundCallRequest, len(a.placed))
	copy(out, a.placed)
	return out
}
