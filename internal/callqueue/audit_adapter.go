package callqueue

import (
	"context"
	"log/slog"

	"callcenter-routing/internal/audit"
	"callcenter-routing/internal/telephony"
)

// AuditAdapter bridges the service's audit hooks to the shared audit.Service.
//
// This keeps the state machine from depending on persistence details, and
// makes audit capture best-effort: failures are logged, never propagated.

type AuditAdapter struct {
	Audit *audit.Service
	Log   *slog.Logger
}

func (a AuditAdapter) CallEvent(ctx context.Context, tenantID, callID string, provider telephony.ProviderType, event telephony.EventType, raw string) {
	if a.Audit == nil {
		return
	}
	if err := a.Audit.LogCallEvent(ctx, tenantID, callID, string(provider), string(event), raw); err != nil {
		a.warn("call event audit failed", tenantID, callID, err)
	}
}

func (a AuditAdapter) AgentAction(ctx context.Context, tenantID, callID, agentID, action string) {
	if a.Audit == nil {
		return
	}
	if err := a.Audit.LogAgentAction(ctx, tenantID, callID, agentID, action); err != nil {
		a.warn("agent action audit failed", tenantID, callID, err)
	}
}

func (a AuditAdapter) warn(msg, tenantID, callID string, err error) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn(msg, "tenant", tenantID, "call", callID, "err", err)
}
