package telephony

import (
	"context"
	"net/http"
	"testing"
)

func pbxConfig() ProviderConfig {
	return ProviderConfig{
		ID:       "prov-2",
		TenantID: "tenant-1",
		Type:     ProviderSIPPBX,
		Config:   map[string]string{"callback_token": "tok"},
		IsActive: true,
	}
}

func pbxRequest(body, token string) WebhookRequest {
	h := http.Header{}
	if token != "" {
		h.Set("X-PBX-Token", token)
	}
	return WebhookRequest{Headers: h, Body: []byte(body), ContentType: "application/json"}
}

func TestPBXCallbackAndStreamShareOneMapping(t *testing.T) {
	a := NewPBXAdapter()

	body := `{"event":"Newstate","uniqueid":"1717243200.17","linkedid":"1717243200.16",` +
		`"caller_id_num":"+15550100","caller_id_name":"Ana","exten":"+15550200","channel_state_desc":"Up"}`
	fromWebhook, err := a.ParseWebhook(context.Background(), pbxRequest(body, "tok"), pbxConfig())
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}

	frame := NewFrame(
		"Event", "Newstate",
		"Uniqueid", "1717243200.17",
		"Linkedid", "1717243200.16",
		"CallerIDNum", "+15550100",
		"CallerIDName", "Ana",
		"Exten", "+15550200",
		"ChannelStateDesc", "Up",
	)
	fromStream, err := a.NormalizeFrame(frame, "")
	if err != nil {
		t.Fatalf("NormalizeFrame: %v", err)
	}

	fromWebhook.RawPayload = ""
	fromStream.RawPayload = ""
	if fromWebhook != fromStream {
		t.Fatalf("webhook event %+v differs from stream event %+v", fromWebhook, fromStream)
	}
	if fromStream.EventType != EventAnswered {
		t.Fatalf("event type = %q, want %q", fromStream.EventType, EventAnswered)
	}
	if fromStream.ExternalCallID != "1717243200.16" {
		t.Fatalf("call id = %q, want linkedid", fromStream.ExternalCallID)
	}
}

func TestPBXTokenAuth(t *testing.T) {
	a := NewPBXAdapter()
	body := `{"event":"Newchannel","uniqueid":"u1"}`

	if _, err := a.ParseWebhook(context.Background(), pbxRequest(body, "wrong"), pbxConfig()); !IsAuthError(err) {
		t.Fatalf("wrong token: got %v, want auth error", err)
	}
	if _, err := a.ParseWebhook(context.Background(), pbxRequest(body, ""), pbxConfig()); !IsAuthError(err) {
		t.Fatalf("missing token: got %v, want auth error", err)
	}

	cfg := pbxConfig()
	cfg.Config = map[string]string{}
	if _, err := a.ParseWebhook(context.Background(), pbxRequest(body, "tok"), cfg); !IsAuthError(err) {
		t.Fatalf("unconfigured token: got %v, want auth error", err)
	}
}

func TestPBXFrameVocabulary(t *testing.T) {
	a := NewPBXAdapter()
	cases := []struct {
		name  string
		frame Frame
		want  EventType
	}{
		{"newchannel", NewFrame("Event", "Newchannel", "Uniqueid", "u1"), EventIncoming},
		{"ringing", NewFrame("Event", "Newstate", "Uniqueid", "u1", "ChannelStateDesc", "Ringing"), EventRinging},
		{"ring", NewFrame("Event", "Newstate", "Uniqueid", "u1", "ChannelStateDesc", "Ring"), EventRinging},
		{"answered", NewFrame("Event", "Newstate", "Uniqueid", "u1", "ChannelStateDesc", "Up"), EventAnswered},
		{"hold", NewFrame("Event", "Hold", "Uniqueid", "u1"), EventHold},
		{"unhold", NewFrame("Event", "Unhold", "Uniqueid", "u1"), EventAnswered},
		{"blind transfer", NewFrame("Event", "BlindTransfer", "Uniqueid", "u1"), EventTransfer},
		{"attended transfer", NewFrame("Event", "AttendedTransfer", "Uniqueid", "u1"), EventTransfer},
		{"recording", NewFrame("Event", "MonitorStart", "Uniqueid", "u1"), EventRecording},
	}
	for _, tc := range cases {
		ev, err := a.NormalizeFrame(tc.frame, "")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ev.EventType != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, ev.EventType, tc.want)
		}
	}
}

func TestPBXHangupCauseMapping(t *testing.T) {
	a := NewPBXAdapter()

	for _, cause := range []string{"0", "16", ""} {
		ev, err := a.NormalizeFrame(NewFrame("Event", "Hangup", "Uniqueid", "u1", "Cause", cause), "")
		if err != nil {
			t.Fatalf("cause %q: %v", cause, err)
		}
		if ev.EventType != EventEnded {
			t.Fatalf("cause %q: got %q, want %q", cause, ev.EventType, EventEnded)
		}
	}

	ev, err := a.NormalizeFrame(NewFrame("Event", "Hangup", "Uniqueid", "u1", "Cause", "21"), "")
	if err != nil {
		t.Fatalf("cause 21: %v", err)
	}
	if ev.EventType != EventFailed {
		t.Fatalf("cause 21: got %q, want %q", ev.EventType, EventFailed)
	}
}

func TestPBXUniqueidFallback(t *testing.T) {
	a := NewPBXAdapter()
	ev, err := a.NormalizeFrame(NewFrame("Event", "Newchannel", "Uniqueid", "u-only"), "")
	if err != nil {
		t.Fatalf("NormalizeFrame: %v", err)
	}
	if ev.ExternalCallID != "u-only" {
		t.Fatalf("call id = %q, want uniqueid fallback", ev.ExternalCallID)
	}
}

func TestPBXRejectsUnattributableFrames(t *testing.T) {
	a := NewPBXAdapter()

	if _, err := a.NormalizeFrame(NewFrame("Event", "Newchannel"), ""); !IsParseError(err) {
		t.Fatalf("missing ids: got %v, want parse error", err)
	}
	if _, err := a.NormalizeFrame(NewFrame("Event", "PeerStatus", "Uniqueid", "u1"), ""); !IsParseError(err) {
		t.Fatalf("unhandled event: got %v, want parse error", err)
	}
	if _, err := a.NormalizeFrame(NewFrame("Response", "Success"), ""); !IsParseError(err) {
		t.Fatalf("command response: got %v, want parse error", err)
	}
	if _, err := a.ParseWebhook(context.Background(), pbxRequest("not json", "tok"), pbxConfig()); !IsParseError(err) {
		t.Fatalf("invalid json: got %v, want parse error", err)
	}
}
