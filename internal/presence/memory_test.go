package presence

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeatTracksAvailability(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewMemoryRegistry(30 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := r.Heartbeat(ctx, "tenant-1", Agent{AgentID: "agent-1", Extension: "101", Available: true}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := r.Heartbeat(ctx, "tenant-1", Agent{AgentID: "agent-2", Available: false}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	agents, err := r.Available(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(agents) != 1 || agents[0].AgentID != "agent-1" {
		t.Fatalf("available = %+v", agents)
	}

	ok, err := r.IsAvailable(ctx, "tenant-1", "agent-2")
	if err != nil || ok {
		t.Fatalf("busy agent reported available: %v %v", ok, err)
	}
	if ok, _ := r.IsAvailable(ctx, "tenant-1", "nobody"); ok {
		t.Fatalf("unknown agent reported available")
	}
}

func TestHeartbeatExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewMemoryRegistry(30 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := r.Heartbeat(ctx, "tenant-1", Agent{AgentID: "agent-1", Available: true}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	now = now.Add(29 * time.Second)
	if ok, _ := r.IsAvailable(ctx, "tenant-1", "agent-1"); !ok {
		t.Fatalf("agent expired before TTL")
	}

	now = now.Add(2 * time.Second)
	if ok, _ := r.IsAvailable(ctx, "tenant-1", "agent-1"); ok {
		t.Fatalf("agent still available past TTL")
	}
	if agents, _ := r.Available(ctx, "tenant-1"); len(agents) != 0 {
		t.Fatalf("expired agent still listed: %+v", agents)
	}

	// A fresh heartbeat revives the record.
	if err := r.Heartbeat(ctx, "tenant-1", Agent{AgentID: "agent-1", Available: true}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ok, _ := r.IsAvailable(ctx, "tenant-1", "agent-1"); !ok {
		t.Fatalf("revived agent not available")
	}
}

func TestHeartbeatValidation(t *testing.T) {
	r := NewMemoryRegistry(time.Minute)
	if err := r.Heartbeat(context.Background(), "", Agent{AgentID: "agent-1"}); err == nil {
		t.Fatalf("missing tenant accepted")
	}
	if err := r.Heartbeat(context.Background(), "tenant-1", Agent{}); err == nil {
		t.Fatalf("missing agent id accepted")
	}
}

func TestPresenceIsTenantScoped(t *testing.T) {
	r := NewMemoryRegistry(time.Minute)
	ctx := context.Background()
	if err := r.Heartbeat(ctx, "tenant-1", Agent{AgentID: "agent-1", Available: true}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ok, _ := r.IsAvailable(ctx, "tenant-2", "agent-1"); ok {
		t.Fatalf("presence leaked across tenants")
	}
}
