package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GatewayAdapter integrates a hosted PSTN gateway that delivers call events
// as form-encoded webhooks and accepts REST control commands.
//
// Config keys (per tenant ProviderConfig.Config):
//   webhook_secret  HMAC key for inbound signature validation (required)
//   api_base        REST base URL for outbound/control requests (required
//                   for PlaceOutboundCall/SendControlAction)
//   api_key         bearer token for REST requests
type GatewayAdapter struct {
	// HTTP is injectable for tests; defaults to a client with a short timeout.
	HTTP *http.Client
}

const gatewaySignatureHeader = "X-Gateway-Signature"

func NewGatewayAdapter() *GatewayAdapter {
	return &GatewayAdapter{HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (a *GatewayAdapter) Type() ProviderType { return ProviderHostedGateway }

// gatewayEventTypes maps the gateway's CallStatus vocabulary onto canonical
// event types. Unknown statuses are a ParseError, not a guess.
var gatewayEventTypes = map[string]EventType{
	"initiated":   EventIncoming,
	"ringing":     EventRinging,
	"in-progress": EventAnswered,
	"hold":        EventHold,
	"transfer":    EventTransfer,
	"completed":   EventEnded,
	"recording":   EventRecording,
	"failed":      EventFailed,
	"busy":        EventFailed,
}

func (a *GatewayAdapter) ParseWebhook(_ context.Context, req WebhookRequest, cfg ProviderConfig) (NormalizedCallEvent, error) {
	secret := cfg.Config["webhook_secret"]
	if secret == "" {
		return NormalizedCallEvent{}, &AuthError{Provider: a.Type(), Reason: "webhook_secret not configured"}
	}
	if err := verifyGatewaySignature(req, secret); err != nil {
		return NormalizedCallEvent{}, err
	}

	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "invalid form body"}
	}

	callID := strings.TrimSpace(form.Get("CallSid"))
	if callID == "" {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "missing CallSid"}
	}
	status := strings.TrimSpace(form.Get("CallStatus"))
	et, ok := gatewayEventTypes[status]
	if !ok {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: fmt.Sprintf("unknown CallStatus %q", status)}
	}

	duration := 0
	if v := form.Get("CallDuration"); v != "" {
		duration, _ = strconv.Atoi(v)
	}

	return NormalizedCallEvent{
		EventType:       et,
		ExternalCallID:  callID,
		CallerPhone:     strings.TrimSpace(form.Get("From")),
		CallerName:      strings.TrimSpace(form.Get("CallerName")),
		CalledNumber:    strings.TrimSpace(form.Get("To")),
		ProviderStatus:  status,
		DurationSeconds: duration,
		RecordingURL:    strings.TrimSpace(form.Get("RecordingUrl")),
		RawPayload:      string(req.Body),
	}, nil
}

// verifyGatewaySignature checks hex(HMAC-SHA256(secret, body)) against the
// signature header using a constant-time compare.
func verifyGatewaySignature(req WebhookRequest, secret string) error {
	got := strings.TrimSpace(req.Headers.Get(gatewaySignatureHeader))
	if got == "" {
		return &AuthError{Provider: ProviderHostedGateway, Reason: "missing signature header"}
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(req.Body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(got), []byte(want)) {
		return &AuthError{Provider: ProviderHostedGateway, Reason: "signature mismatch"}
	}
	return nil
}

// SignGatewayPayload computes the signature the gateway attaches to webhooks.
// Exposed for tests and the wiretap tooling.
func SignGatewayPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *GatewayAdapter) PlaceOutboundCall(ctx context.Context, req OutboundCallRequest, cfg ProviderConfig) (CallResult, error) {
	body, _ := json.Marshal(map[string]string{"from": req.From, "to": req.To})
	return a.rest(ctx, cfg, http.MethodPost, "/calls", body)
}

func (a *GatewayAdapter) SendControlAction(ctx context.Context, externalCallID string, action ControlAction, cfg ProviderConfig) (CallResult, error) {
	path := fmt.Sprintf("/calls/%s/%s", url.PathEscape(externalCallID), action)
	return a.rest(ctx, cfg, http.MethodPost, path, nil)
}

func (a *GatewayAdapter) rest(ctx context.Context, cfg ProviderConfig, method, path string, body []byte) (CallResult, error) {
	base := cfg.Config["api_base"]
	if base == "" {
		return CallResult{Retryable: false, Detail: "api_base not configured"}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, strings.NewReader(string(body)))
	if err != nil {
		return CallResult{Retryable: false, Detail: err.Error()}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := cfg.Config["api_key"]; key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		// Transport failure: the gateway may be reachable on a later attempt.
		return CallResult{Retryable: true, Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	var out struct {
		CallID string `json:"call_id"`
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return CallResult{Success: true, ExternalCallID: out.CallID, ProviderStatus: out.Status}, nil
	case resp.StatusCode >= 500:
		return CallResult{Retryable: true, ProviderStatus: out.Status, Detail: resp.Status}, nil
	default:
		// 4xx: permanent rejection (invalid line, unknown call, bad request).
		return CallResult{Retryable: false, ProviderStatus: out.Status, Detail: resp.Status}, nil
	}
}
