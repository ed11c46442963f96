package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	err := svc.Append(context.Background(), Event{TenantID: "tenant-1", Type: EventTypeCallEvent})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID == "" {
		t.Fatalf("id not generated")
	}
	if !events[0].CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", events[0].CreatedAt, now)
	}
}

func TestAppendKeepsCallerProvidedFields(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	stamp := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	err := svc.Append(context.Background(), Event{
		ID:        "evt-1",
		TenantID:  "tenant-1",
		Type:      EventTypeAgentAction,
		CreatedAt: stamp,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := repo.Events()[0]
	if got.ID != "evt-1" || !got.CreatedAt.Equal(stamp) {
		t.Fatalf("caller fields overwritten: %+v", got)
	}
}

func TestAppendValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{Type: EventTypeCallEvent}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing tenant: %v", err)
	}
	if err := svc.Append(context.Background(), Event{TenantID: "tenant-1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing type: %v", err)
	}
}

func TestLogCallEvent(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogCallEvent(context.Background(), "tenant-1", "call-1", "sip_pbx", "answered", `{"Event":"Newstate"}`)
	if err != nil {
		t.Fatalf("LogCallEvent: %v", err)
	}
	got := repo.Events()[0]
	if got.Type != EventTypeCallEvent || got.CallID != "call-1" || got.Provider != "sip_pbx" {
		t.Fatalf("event = %+v", got)
	}
	if got.Message != "answered" || got.Metadata != `{"Event":"Newstate"}` {
		t.Fatalf("payload fields wrong: %+v", got)
	}
}

func TestLogAgentAction(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogAgentAction(context.Background(), "tenant-1", "call-1", "agent-7", "transfer")
	if err != nil {
		t.Fatalf("LogAgentAction: %v", err)
	}
	got := repo.Events()[0]
	if got.Type != EventTypeAgentAction || got.AgentID != "agent-7" || got.Action != "transfer" {
		t.Fatalf("event = %+v", got)
	}
}
