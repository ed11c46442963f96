package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callcenter-routing/internal/callqueue"
	"callcenter-routing/internal/telephony"

	"github.com/gin-gonic/gin"
)

func webhookRouter(t *testing.T) (*gin.Engine, *callqueue.Service, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := callqueue.NewService(callqueue.NewMemoryRepo(), callqueue.ServiceConfig{}, callqueue.Deps{})
	inbox := callqueue.NewInbox(svc, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go inbox.Run(ctx)

	resolver := telephony.NewMemoryResolver()
	resolver.AddProvider(telephony.ProviderConfig{
		ID:          "prov-1",
		TenantID:    "tenant-1",
		Type:        telephony.ProviderMock,
		Config:      map[string]string{"token": "tok"},
		IsActive:    true,
		WebhookMode: telephony.WebhookModeHTTP,
	})
	resolver.AddNumber(telephony.PhoneNumber{
		ID: "num-1", TenantID: "tenant-1", ProviderID: "prov-1",
		Number: "+15550200", IsActive: true,
	})

	h := Handlers{
		Inbox:    inbox,
		Resolver: resolver,
		Adapters: telephony.NewRegistry(telephony.NewMockAdapter()),
	}
	r := gin.New()
	r.POST("/webhooks/:tenant_id/:provider_type", h.ProviderWebhook)
	return r, svc, cancel
}

func postWebhook(r *gin.Engine, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Mock-Token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProviderWebhookEnqueuesEvent(t *testing.T) {
	r, svc, cancel := webhookRouter(t)
	defer cancel()

	body := `{"event":"incoming","external_call_id":"m-1","caller_phone":"+15550100","called_number":"+15550200"}`
	w := postWebhook(r, "/webhooks/tenant-1/mock", body, "tok")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		items, err := svc.LiveQueue(context.Background(), "tenant-1")
		if err != nil {
			t.Fatalf("LiveQueue: %v", err)
		}
		if len(items) == 1 {
			if items[0].ExternalCallID != "m-1" {
				t.Fatalf("queued call = %+v", items[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("event never reached the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProviderWebhookRejectsBadToken(t *testing.T) {
	r, _, cancel := webhookRouter(t)
	defer cancel()

	body := `{"event":"incoming","external_call_id":"m-1"}`
	if w := postWebhook(r, "/webhooks/tenant-1/mock", body, "nope"); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestProviderWebhookRejectsMalformedPayload(t *testing.T) {
	r, _, cancel := webhookRouter(t)
	defer cancel()

	if w := postWebhook(r, "/webhooks/tenant-1/mock", `{"event":"incoming"}`, "tok"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestProviderWebhookUnknownEndpoints(t *testing.T) {
	r, _, cancel := webhookRouter(t)
	defer cancel()

	body := `{"event":"incoming","external_call_id":"m-1"}`
	if w := postWebhook(r, "/webhooks/tenant-1/teleporter", body, "tok"); w.Code != http.StatusNotFound {
		t.Fatalf("bad provider type: status = %d, want 404", w.Code)
	}
	if w := postWebhook(r, "/webhooks/tenant-9/mock", body, "tok"); w.Code != http.StatusNotFound {
		t.Fatalf("unconfigured tenant: status = %d, want 404", w.Code)
	}
}
