package telephony

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PBXAdapter integrates a SIP PBX. Inbound events arrive either as discrete
// HTTP callbacks (JSON) or over a continuous manager event stream
// (FrameReader); both paths funnel through frameToNormalized so equivalent
// underlying events produce identical NormalizedCallEvent output.
//
// Config keys:
//   callback_token  shared secret for HTTP callbacks (required for HTTP mode)
//   api_base        PBX HTTP control API base URL
//   api_token       token for control API requests
//   stream_addr     host:port of the manager event stream (stream mode)
type PBXAdapter struct {
	HTTP *http.Client
}

const pbxTokenHeader = "X-PBX-Token"

func NewPBXAdapter() *PBXAdapter {
	return &PBXAdapter{HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (a *PBXAdapter) Type() ProviderType { return ProviderSIPPBX }

func (a *PBXAdapter) ParseWebhook(_ context.Context, req WebhookRequest, cfg ProviderConfig) (NormalizedCallEvent, error) {
	token := cfg.Config["callback_token"]
	if token == "" {
		return NormalizedCallEvent{}, &AuthError{Provider: a.Type(), Reason: "callback_token not configured"}
	}
	got := strings.TrimSpace(req.Headers.Get(pbxTokenHeader))
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return NormalizedCallEvent{}, &AuthError{Provider: a.Type(), Reason: "callback token mismatch"}
	}

	var payload map[string]any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "invalid json body"}
	}

	// Re-shape the JSON callback into the manager-stream frame vocabulary so
	// both ingestion modes share one mapping.
	frame := NewFrame(
		"Event", jsonString(payload, "event"),
		"Uniqueid", jsonString(payload, "uniqueid"),
		"Linkedid", jsonString(payload, "linkedid"),
		"CallerIDNum", jsonString(payload, "caller_id_num"),
		"CallerIDName", jsonString(payload, "caller_id_name"),
		"Exten", jsonString(payload, "exten"),
		"ChannelStateDesc", jsonString(payload, "channel_state_desc"),
		"Cause", jsonString(payload, "cause"),
		"Duration", jsonString(payload, "duration"),
		"RecordingURL", jsonString(payload, "recording_url"),
	)
	return a.NormalizeFrame(frame, string(req.Body))
}

// NormalizeFrame translates one manager-stream frame. Used directly by the
// stream runner and indirectly by ParseWebhook.
func (a *PBXAdapter) NormalizeFrame(f Frame, raw string) (NormalizedCallEvent, error) {
	if f.IsResponse() {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "command response is not an event"}
	}

	callID := f.Get("Linkedid")
	if callID == "" {
		callID = f.Get("Uniqueid")
	}
	if callID == "" {
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: "missing Linkedid/Uniqueid"}
	}

	var et EventType
	switch f.Event() {
	case "Newchannel":
		et = EventIncoming
	case "Newstate":
		switch f.Get("ChannelStateDesc") {
		case "Ringing", "Ring":
			et = EventRinging
		case "Up":
			et = EventAnswered
		default:
			return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: fmt.Sprintf("unhandled channel state %q", f.Get("ChannelStateDesc"))}
		}
	case "Hold":
		et = EventHold
	case "Unhold":
		et = EventAnswered
	case "BlindTransfer", "AttendedTransfer":
		et = EventTransfer
	case "MonitorStart":
		et = EventRecording
	case "Hangup":
		// Cause 16 is normal clearing; 0 means unset. Anything else is a
		// provider-side failure.
		switch f.GetInt("Cause") {
		case 0, 16:
			et = EventEnded
		default:
			et = EventFailed
		}
	default:
		return NormalizedCallEvent{}, &ParseError{Provider: a.Type(), Reason: fmt.Sprintf("unhandled event %q", f.Event())}
	}

	status := f.Get("ChannelStateDesc")
	if status == "" {
		status = f.Event()
	}

	return NormalizedCallEvent{
		EventType:       et,
		ExternalCallID:  callID,
		CallerPhone:     f.Get("CallerIDNum"),
		CallerName:      f.Get("CallerIDName"),
		CalledNumber:    f.Get("Exten"),
		ProviderStatus:  status,
		DurationSeconds: f.GetInt("Duration"),
		RecordingURL:    f.Get("RecordingURL"),
		RawPayload:      raw,
	}, nil
}

func (a *PBXAdapter) PlaceOutboundCall(ctx context.Context, req OutboundCallRequest, cfg ProviderConfig) (CallResult, error) {
	body, _ := json.Marshal(map[string]string{"endpoint": req.From, "extension": req.To})
	return a.api(ctx, cfg, "/originate", body)
}

func (a *PBXAdapter) SendControlAction(ctx context.Context, externalCallID string, action ControlAction, cfg ProviderConfig) (CallResult, error) {
	body, _ := json.Marshal(map[string]string{"channel": externalCallID, "action": string(action)})
	return a.api(ctx, cfg, "/channels/"+url.PathEscape(externalCallID)+"/control", body)
}

func (a *PBXAdapter) api(ctx context.Context, cfg ProviderConfig, path string, body []byte) (CallResult, error) {
	base := cfg.Config["api_base"]
	if base == "" {
		return CallResult{Retryable: false, Detail: "api_base not configured"}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, strings.NewReader(string(body)))
	if err != nil {
		return CallResult{Retryable: false, Detail: err.Error()}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if tok := cfg.Config["api_token"]; tok != "" {
		httpReq.Header.Set(pbxTokenHeader, tok)
	}

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return CallResult{Retryable: true, Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	var out struct {
		Uniqueid string `json:"uniqueid"`
		Status   string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return CallResult{Success: true, ExternalCallID: out.Uniqueid, ProviderStatus: out.Status}, nil
	case resp.StatusCode >= 500:
		return CallResult{Retryable: true, ProviderStatus: out.Status, Detail: resp.Status}, nil
	default:
		return CallResult{Retryable: false, ProviderStatus: out.Status, Detail: resp.Status}, nil
	}
}

func jsonString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.Itoa(int(v))
	default:
		return ""
	}
}
