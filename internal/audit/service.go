package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only; no Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information for the telephony core.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by
//   default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallEvent records one normalized provider event applied to a call.
func (s *Service) LogCallEvent(ctx context.Context, tenantID, callID, provider, eventType, rawPayload string) error {
	return s.Append(ctx, Event{
		TenantID: tenantID,
		Type:     EventTypeCallEvent,
		CallID:   callID,
		Provider: provider,
		Message:  eventType,
		Metadata: rawPayload,
	})
}

// LogAgentAction records one agent mutation (answer, hold, transfer, ...).
func (s *Service) LogAgentAction(ctx context.Context, tenantID, callID, agentID, action string) error {
	return s.Append(ctx, Event{
		TenantID: tenantID,
		Type:     EventTypeAgentAction,
		CallID:   callID,
		AgentID:  agentID,
		Action:   action,
		Message:  "agent action",
	})
}
