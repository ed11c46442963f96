package telephony

import (
	"context"
	"net/http"
	"testing"
)

func mockConfig() ProviderConfig {
	return ProviderConfig{
		ID: "prov-3", TenantID: "tenant-1", Type: ProviderMock,
		Config: map[string]string{"token": "tok"}, IsActive: true,
	}
}

func mockRequest(body, token string) WebhookRequest {
	h := http.Header{}
	if token != "" {
		h.Set("X-Mock-Token", token)
	}
	return WebhookRequest{Headers: h, Body: []byte(body), ContentType: "application/json"}
}

func TestMockParseWebhook(t *testing.T) {
	a := NewMockAdapter()
	body := `{"event":"incoming","external_call_id":"m-1","caller_phone":"+15550100","called_number":"+15550200"}`
	ev, err := a.ParseWebhook(context.Background(), mockRequest(body, "tok"), mockConfig())
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.EventType != EventIncoming || ev.ExternalCallID != "m-1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.ProviderStatus != "incoming" {
		t.Fatalf("status should default to the event name: %q", ev.ProviderStatus)
	}
}

func TestMockParseWebhookRejections(t *testing.T) {
	a := NewMockAdapter()
	valid := `{"event":"incoming","external_call_id":"m-1"}`

	if _, err := a.ParseWebhook(context.Background(), mockRequest(valid, "nope"), mockConfig()); !IsAuthError(err) {
		t.Fatalf("wrong token: got %v, want auth error", err)
	}
	if _, err := a.ParseWebhook(context.Background(), mockRequest(`{"event":"incoming"}`, "tok"), mockConfig()); !IsParseError(err) {
		t.Fatalf("missing call id: got %v, want parse error", err)
	}
	if _, err := a.ParseWebhook(context.Background(), mockRequest(`{"event":"teleport","external_call_id":"m-1"}`, "tok"), mockConfig()); !IsParseError(err) {
		t.Fatalf("unknown event: got %v, want parse error", err)
	}
}

func TestMockRecordsPlacedCalls(t *testing.T) {
	a := NewMockAdapter()
	res, err := a.PlaceOutboundCall(context.Background(), OutboundCallRequest{From: "+15550100", To: "+15550300"}, mockConfig())
	if err != nil {
		t.Fatalf("PlaceOutboundCall: %v", err)
	}
	if !res.Success || res.ExternalCallID == "" {
		t.Fatalf("result = %+v", res)
	}
	placed := a.Placed()
	if len(placed) != 1 || placed[0].To != "+15550300" {
		t.Fatalf("placed = %+v", placed)
	}
}
