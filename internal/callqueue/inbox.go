package callqueue

import (
	"context"
	"errors"
	"log/slog"

	"callcenter-routing/internal/telephony"
)

// InboundEnvelope is one normalized event attributed to a tenant line,
// ready for the state machine.
type InboundEnvelope struct {
	TenantID      string
	PhoneNumberID string
	Provider      telephony.ProviderType
	Event         telephony.NormalizedCallEvent
}

// Inbox is the typed channel between adapters and the state machine. It
// decouples webhook/stream ingestion rate from transition processing:
// handlers enqueue and return, the Run loop applies events in order.
type Inbox struct {
	ch  chan InboundEnvelope
	svc *Service
	log *slog.Logger
}

func NewInbox(svc *Service, size int, log *slog.Logger) *Inbox {
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Inbox{ch: make(chan InboundEnvelope, size), svc: svc, log: log}
}

// Enqueue hands an envelope to the processing loop. Returns false if the
// inbox is full or the context ended; callers surface that as backpressure.
func (i *Inbox) Enqueue(ctx context.Context, env InboundEnvelope) bool {
	select {
	case i.ch <- env:
		return true
	case <-ctx.Done():
		return false
	default:
		i.log.Warn("inbox full, dropping event",
			"tenant", env.TenantID, "provider", env.Provider, "call", env.Event.ExternalCallID)
		return false
	}
}

// Run consumes envelopes until the context ends.
func (i *Inbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-i.ch:
			i.process(ctx, env)
		}
	}
}

func (i *Inbox) process(ctx context.Context, env InboundEnvelope) {
	_, err := i.svc.Ingest(ctx, env.TenantID, env.PhoneNumberID, env.Provider, env.Event)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		// Unknown or foreign call: drop the event.
		i.log.Debug("event dropped, call unknown",
			"tenant", env.TenantID, "provider", env.Provider, "call", env.Event.ExternalCallID)
	case IsInvalidTransition(err):
		i.log.Warn("provider event rejected",
			"tenant", env.TenantID, "call", env.Event.ExternalCallID, "err", err)
	default:
		i.log.Error("event ingestion failed",
			"tenant", env.TenantID, "call", env.Event.ExternalCallID, "err", err)
	}
}
