package telephony

import (
	"context"
	"testing"
	"time"
)

func TestSendWithRetryStopsOnSuccess(t *testing.T) {
	a := NewMockAdapter()
	res := SendWithRetry(context.Background(), a, "ext-1", ActionHold, ProviderConfig{}, RetryPolicy{}, nil)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if got := a.Actions(); len(got) != 1 || got[0].Action != ActionHold {
		t.Fatalf("actions = %+v", got)
	}
}

func TestSendWithRetryStopsOnPermanentFailure(t *testing.T) {
	a := NewMockAdapter()
	a.ControlResult = &CallResult{Success: false, Retryable: false, Detail: "call not found"}
	res := SendWithRetry(context.Background(), a, "ext-1", ActionHangup, ProviderConfig{},
		RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, nil)
	if res.Success || res.Retryable {
		t.Fatalf("result = %+v", res)
	}
	if got := a.Actions(); len(got) != 1 {
		t.Fatalf("permanent failure retried: %d attempts", len(got))
	}
}

func TestSendWithRetryExhaustsBudget(t *testing.T) {
	a := NewMockAdapter()
	a.ControlResult = &CallResult{Success: false, Retryable: true, Detail: "gateway timeout"}
	res := SendWithRetry(context.Background(), a, "ext-1", ActionAnswer, ProviderConfig{},
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	if res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.Retryable {
		t.Fatalf("spent budget must surface as permanent: %+v", res)
	}
	if got := a.Actions(); len(got) != 3 {
		t.Fatalf("got %d attempts, want 3", len(got))
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(NewMockAdapter())
	if _, err := reg.Get(ProviderMock); err != nil {
		t.Fatalf("Get mock: %v", err)
	}
	if _, err := reg.Get(ProviderHostedGateway); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
	reg.Register(NewGatewayAdapter())
	if _, err := reg.Get(ProviderHostedGateway); err != nil {
		t.Fatalf("Get gateway after Register: %v", err)
	}
}

func TestDispatcherReportsPermanentFailure(t *testing.T) {
	mock := NewMockAdapter()
	mock.ControlResult = &CallResult{Success: false, Retryable: false, Detail: "rejected"}

	resolver := NewMemoryResolver()
	resolver.AddProvider(ProviderConfig{
		ID:       "prov-1",
		TenantID: "tenant-1",
		Type:     ProviderMock,
		Config:   map[string]string{"token": "tok"},
		IsActive: true,
	})

	failed := make(chan CallResult, 1)
	d := &Dispatcher{
		Registry: NewRegistry(mock),
		Resolver: resolver,
		Retry:    RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		OnPermanentFailure: func(tenantID, callID string, res CallResult) {
			if tenantID != "tenant-1" || callID != "call-1" {
				t.Errorf("failure attribution wrong: %s/%s", tenantID, callID)
			}
			failed <- res
		},
	}

	d.Dispatch("tenant-1", "call-1", ProviderMock, "ext-1", ActionHangup)
	select {
	case res := <-failed:
		if res.Detail != "rejected" {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnPermanentFailure never fired")
	}
}

func TestDispatcherSuccessDoesNotReportFailure(t *testing.T) {
	resolver := NewMemoryResolver()
	resolver.AddProvider(ProviderConfig{
		ID: "prov-1", TenantID: "tenant-1", Type: ProviderMock,
		Config: map[string]string{"token": "tok"}, IsActive: true,
	})

	mock := NewMockAdapter()
	d := &Dispatcher{
		Registry: NewRegistry(mock),
		Resolver: resolver,
		OnPermanentFailure: func(tenantID, callID string, res CallResult) {
			t.Errorf("unexpected failure report: %+v", res)
		},
	}
	d.Dispatch("tenant-1", "call-1", ProviderMock, "ext-1", ActionResume)

	deadline := time.Now().Add(2 * time.Second)
	for len(mock.Actions()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("action never dispatched")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := mock.Actions(); got[0].Action != ActionResume || got[0].ExternalCallID != "ext-1" {
		t.Fatalf("actions = %+v", got)
	}
}
